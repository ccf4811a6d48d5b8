package docflow

import (
	"context"
	"errors"
	"testing"
)

func TestServiceExportsPropagateErrors(t *testing.T) {
	if _, err := NewService(context.Background(), nil, DiscardLogger(), ServiceDependencies{}); !errors.Is(err, ErrConfigRequired) {
		t.Fatalf("expected config required error, got %v", err)
	}

	var svc *Service
	if err := svc.Register(context.Background(), Middleware{}); !errors.Is(err, ErrServiceRequired) {
		t.Fatalf("expected service required error, got %v", err)
	}
}

func TestConditionExports(t *testing.T) {
	evt := NewEvent(DocumentCreated, Document{URL: EncodeDataURI("image/png", []byte{1}), Type: "image/png"})

	if !Evaluate(And(TypeIs("document-created"), MimeTypes("image/*")), evt) {
		t.Fatal("expected image event to match")
	}
	if Evaluate(Or(DocumentType("text/plain"), KindIs(KindText)), evt) {
		t.Fatal("expected image event not to match text condition")
	}

	data, err := MarshalCondition(Not(When("document.type").Equals("text/plain")))
	if err != nil {
		t.Fatalf("marshal condition: %v", err)
	}
	expr, err := ParseCondition(data)
	if err != nil {
		t.Fatalf("parse condition: %v", err)
	}
	if !Evaluate(expr, evt) {
		t.Fatalf("expected round-tripped condition %s to match", expr)
	}
}

func TestEventExports(t *testing.T) {
	root := NewEvent(DocumentCreated, Document{URL: "cache://ocr/abc", Type: "text/plain"})
	child := WithMetadata(DeriveEvent(root, DocumentUpdated), KindPatch(KindText, nil))

	data, err := SerializeEvent(child)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	parsed, err := ParseEvent(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.ChainID != root.ChainID || parsed.Sequence != 1 {
		t.Fatalf("expected derived event in the root chain, got %+v", parsed)
	}
	if kind, ok := Lookup(parsed, "metadata.properties.kind"); !ok || kind != KindText {
		t.Fatalf("expected kind %q, got %v", KindText, kind)
	}
}

func TestReferenceExports(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	ref, err := Offload(ctx, store, "settings", Value("a long prompt"), 4)
	if err != nil {
		t.Fatalf("offload: %v", err)
	}
	if !IsPointer(ref.Target()) {
		t.Fatalf("expected pointer reference, got %s", ref)
	}

	got, err := NewResolver(store).ResolveString(ctx, ref, Event{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != "a long prompt" {
		t.Fatalf("expected offloaded value, got %q", got)
	}
}

func TestErrorExports(t *testing.T) {
	if !IsFatal(Fatal(errors.New("corrupt"))) {
		t.Fatal("expected fatal classification")
	}
	if !IsTransient(errors.New("unknown")) {
		t.Fatal("expected unknown errors to be transient")
	}
	if !IsTransient(RetryAfter(0, errors.New("throttled"))) {
		t.Fatal("expected retry-after errors to be transient")
	}
}

func TestEncodingExportAliases(t *testing.T) {
	payload := map[string]string{"hello": "world"}
	data, err := Marshal(payload)
	if err != nil {
		t.Fatalf("marshal alias failed: %v", err)
	}
	if err := Unmarshal(data, &payload); err != nil {
		t.Fatalf("unmarshal alias failed: %v", err)
	}
}

func TestLoggerExports(t *testing.T) {
	logger := NewLogger("json", "error")
	logger.With(LogFields{"component": "test"}).Debug("dropped", nil)
}
