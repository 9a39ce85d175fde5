package clog

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestAttributesHandlerMergesContextBag(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewAttributesHandler(slog.NewTextHandler(&buf, nil)))

	ctx := ContextWithSlog(context.Background())
	AddAttribute(ctx, "type", "build")
	AddError(ctx, errors.New("boom"))

	logger.InfoContext(ctx, "task claimed")

	out := buf.String()
	for _, want := range []string{"task claimed", "type=build", ErrorAttributeKey + "=boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}
}

func TestAttributesAddedAfterLoggerCreation(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewAttributesHandler(slog.NewTextHandler(&buf, nil)))

	ctx := ContextWithSlog(context.Background())
	logger.InfoContext(ctx, "before")
	AddAttribute(ctx, "task", "01ABC")
	logger.InfoContext(ctx, "after")

	lines := strings.SplitN(buf.String(), "\n", 2)
	if strings.Contains(lines[0], "task=01ABC") {
		t.Errorf("first record should not carry the attribute: %s", lines[0])
	}
	if !strings.Contains(lines[1], "task=01ABC") {
		t.Errorf("second record should carry the attribute: %s", lines[1])
	}
}

func TestAddAttributeWithoutBagIsNoop(t *testing.T) {
	ctx := context.Background()
	AddAttribute(ctx, "type", "build")
	if got := GetAttributes(ctx); got != nil {
		t.Errorf("GetAttributes() = %v, want nil", got)
	}
}
