package deferred

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goliatone/go-slack-dispatch/core"
)

func TestInvoker_PostsTaskWithToken(t *testing.T) {
	var gotToken string
	var gotTask core.DeferredTask
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get(HeaderDispatchToken)
		body, _ := io.ReadAll(r.Body)
		task, err := core.DecodeTask(body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		gotTask = task
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	invoker := NewInvoker(server.URL, "shared-token")
	invoker.Client = server.Client()
	if err := invoker.Dispatch(context.Background(), sampleTask("T1")); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if gotToken != "shared-token" {
		t.Fatalf("expected dispatch token header, got %q", gotToken)
	}
	if gotTask.ID != "T1" || gotTask.Command != "/start-process" {
		t.Fatalf("unexpected forwarded task: %+v", gotTask)
	}
}

func TestInvoker_NonSuccessStatusFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	invoker := NewInvoker(server.URL, "wrong")
	invoker.Client = server.Client()
	err := invoker.Dispatch(context.Background(), sampleTask("T1"))
	if !core.HasTextCode(err, core.ErrorDispatchFailed) {
		t.Fatalf("expected dispatch failure, got %v", err)
	}
}

func TestInvoker_DoesNotWaitForSlowUnitBeyondTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	invoker := NewInvoker(server.URL, "")
	invoker.Client = server.Client()
	invoker.Timeout = 50 * time.Millisecond

	startedAt := time.Now()
	if err := invoker.Dispatch(context.Background(), sampleTask("T1")); err == nil {
		t.Fatalf("expected timeout error")
	}
	if elapsed := time.Since(startedAt); elapsed > time.Second {
		t.Fatalf("expected bounded invoke, took %s", elapsed)
	}
}

func TestInvoker_ForwardKeepsHeaders(t *testing.T) {
	var gotSignature, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get(core.HeaderSlackSignature)
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	invoker := NewInvoker(server.URL, "")
	invoker.Client = server.Client()
	err := invoker.Forward(context.Background(), map[string]string{core.HeaderSlackSignature: "v0=abc"}, []byte(`{"type":"event_callback"}`))
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if gotSignature != "v0=abc" || gotBody != `{"type":"event_callback"}` {
		t.Fatalf("unexpected forwarded request: %q %q", gotSignature, gotBody)
	}
}

func TestInvoker_RequiresURL(t *testing.T) {
	if err := NewInvoker("", "").Dispatch(context.Background(), sampleTask("T1")); err == nil {
		t.Fatalf("expected missing url error")
	}
}
