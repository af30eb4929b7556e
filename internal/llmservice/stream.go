package llmservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"guarded-rag/internal/models"
)

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

type Message struct {
	Role    string
	Content string
}

// Fragment is one incremental piece of a streamed answer. Text is empty when
// the service sent a delta without content (role-only or final chunks).
type Fragment struct {
	Text string
}

// FragmentStream yields fragments in arrival order and returns io.EOF once
// the answer is complete. It cannot be restarted.
type FragmentStream interface {
	Recv() (Fragment, error)
	Close() error
}

// Answerer starts a streamed chat completion.
type Answerer interface {
	Stream(ctx context.Context, messages []Message) (FragmentStream, error)
}

type flusher interface {
	Flush() error
}

// BuildMessages fills the system template with the retrieved context and
// pairs it with the user's prompt.
func BuildMessages(template, context, prompt string) []Message {
	return []Message{
		{Role: RoleSystem, Content: strings.ReplaceAll(template, models.ContextVariable, context)},
		{Role: RoleUser, Content: prompt},
	}
}

// WriteStream copies every fragment to w as soon as it arrives, flushing after
// each one, and ends the answer with a newline. Output already written stays
// written when the stream fails.
func WriteStream(w io.Writer, stream FragmentStream) error {
	defer stream.Close()

	for {
		fragment, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("receive answer fragment: %w", err)
		}
		if fragment.Text != "" {
			if _, err := io.WriteString(w, fragment.Text); err != nil {
				return err
			}
		}
		if err := flush(w); err != nil {
			return err
		}
	}

	if _, err := io.WriteString(w, "\n"); err != nil {
		return err
	}
	return flush(w)
}

func flush(w io.Writer) error {
	if f, ok := w.(flusher); ok {
		return f.Flush()
	}
	return nil
}
