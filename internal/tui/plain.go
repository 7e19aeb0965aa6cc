// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/ayseljafar/Longevity-check/internal/knowledge"
	"github.com/ayseljafar/Longevity-check/internal/model"
	"github.com/ayseljafar/Longevity-check/internal/relay"
)

// LineReader yields user input one line at a time. io.EOF ends the session.
type LineReader interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

// Plain is the line-oriented chat used by --plain and piped stdin.
type Plain struct {
	client  Client
	out     io.Writer
	timeout time.Duration
	conv    model.Conversation
}

// NewPlain creates a plain session writing to out.
func NewPlain(client Client, out io.Writer, timeout time.Duration) *Plain {
	if timeout <= 0 {
		timeout = relay.DefaultTimeout
	}
	return &Plain{client: client, out: out, timeout: timeout}
}

// Conversation returns the history so far.
func (p *Plain) Conversation() model.Conversation { return p.conv }

// Submit sends one line. On error the history is unchanged.
func (p *Plain) Submit(ctx context.Context, text string) (model.Conversation, *relay.ChatResponse, error) {
	msg := model.NewUserMessage(model.NormalizeContent(text))
	if err := msg.Validate(); err != nil {
		return p.conv, nil, &model.ValidationError{Index: len(p.conv), Err: err}
	}

	sent := p.conv.Append(msg)
	if len(sent) > model.MaxMessages {
		sent = sent[len(sent)-model.MaxMessages:]
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	resp, err := p.client.Chat(ctx, sent)
	if err != nil {
		return p.conv, nil, err
	}
	p.conv = sent.Append(resp.Reply)
	return p.conv, resp, nil
}

// Run reads lines until EOF, "/quit" or ctx is done. Blank lines are skipped;
// "/reset" starts a new conversation.
func (p *Plain) Run(ctx context.Context, in LineReader) error {
	defer in.Close()

	fmt.Fprintf(p.out, "Longevity Health Agent\n%s\n\n", knowledge.DisclaimerGeneral)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line, err := in.ReadLine("you> ")
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}

		switch strings.TrimSpace(line) {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			p.conv = nil
			fmt.Fprintln(p.out, "(new conversation)")
			continue
		}

		_, resp, err := p.Submit(ctx, line)
		if err != nil {
			fmt.Fprintln(p.out, relay.Banner(err))
			continue
		}
		fmt.Fprintf(p.out, "agent> %s\n", resp.Reply.Content)
		if recs := resp.Recommendations; recs != nil && len(recs.Supplements) > 0 {
			fmt.Fprintln(p.out, "Recommended Supplements:")
			for _, s := range recs.Supplements {
				fmt.Fprintf(p.out, "  - %s: %s\n", s.Name, s.Dosage)
			}
		}
		fmt.Fprintln(p.out)
	}
}

// ============================================================================
// LINE READERS
// ============================================================================

// LinerReader is an interactive line editor with history.
type LinerReader struct {
	state *liner.State
}

// NewLinerReader takes over the terminal until Close.
func NewLinerReader() *LinerReader {
	st := liner.NewLiner()
	st.SetCtrlCAborts(true)
	return &LinerReader{state: st}
}

// ReadLine implements LineReader.
func (r *LinerReader) ReadLine(prompt string) (string, error) {
	line, err := r.state.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(line) != "" {
		r.state.AppendHistory(line)
	}
	return line, nil
}

// Close restores the terminal.
func (r *LinerReader) Close() error { return r.state.Close() }

// ScannerReader reads lines from a non-interactive stream, e.g. a pipe.
type ScannerReader struct {
	scanner *bufio.Scanner
}

// NewScannerReader reads from in.
func NewScannerReader(in io.Reader) *ScannerReader {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), model.MaxContentLength+1)
	return &ScannerReader{scanner: sc}
}

// ReadLine implements LineReader. The prompt is not echoed.
func (r *ScannerReader) ReadLine(string) (string, error) {
	if r.scanner.Scan() {
		return r.scanner.Text(), nil
	}
	if err := r.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// Close implements LineReader.
func (r *ScannerReader) Close() error { return nil }
