// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package knowledge

// Disclaimer kinds.
const (
	DisclaimerGeneral       = "general"
	DisclaimerSupplements   = "supplements"
	DisclaimerPrescriptions = "prescriptions"
)

var disclaimers = map[string]string{
	DisclaimerGeneral: "DISCLAIMER: This information is for educational purposes only and is not intended " +
		"as medical advice, diagnosis, or treatment. Always consult with a qualified " +
		"healthcare provider before making any changes to your health regimen.",
	DisclaimerSupplements: "SUPPLEMENT DISCLAIMER: Dietary supplements are not regulated by the FDA and " +
		"have not been evaluated to treat, cure, or prevent any disease. Results may " +
		"vary. Consult with a healthcare professional before starting any supplement.",
	DisclaimerPrescriptions: "PRESCRIPTION DISCLAIMER: Prescription medications require evaluation by a " +
		"licensed healthcare provider. This information does not constitute medical " +
		"advice and does not replace consultation with a healthcare professional.",
}

// Disclaimer returns the disclaimer of the given kind, falling back to the
// general one for unknown kinds.
func Disclaimer(kind string) string {
	if d, ok := disclaimers[kind]; ok {
		return d
	}
	return disclaimers[DisclaimerGeneral]
}

// IsDisclaimerKind reports whether kind names a known disclaimer.
func IsDisclaimerKind(kind string) bool {
	_, ok := disclaimers[kind]
	return ok
}

// DisclaimerKinds lists the known kinds.
func DisclaimerKinds() []string {
	return []string{DisclaimerGeneral, DisclaimerSupplements, DisclaimerPrescriptions}
}
