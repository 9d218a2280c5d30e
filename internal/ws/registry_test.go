package ws

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thrivesend/pulse/internal/logging"
)

func testLogger() logging.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConn(id, organizationID, userID string) *Connection {
	return newConnection(nil, nil, id, organizationID, userID, time.Now(), testLogger())
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()

	c := testConn("c1", "org-1", "")
	if err := r.Register(c); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got, ok := r.Get("c1")
	if !ok {
		t.Fatal("expected connection to be registered")
	}
	if got != c {
		t.Fatal("Get returned a different connection")
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 connection, got %d", r.Len())
	}
}

func TestRegistryDuplicateID(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(testConn("c1", "org-1", "")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(testConn("c1", "org-2", "")); err != ErrDuplicateConnection {
		t.Fatalf("expected ErrDuplicateConnection, got %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 connection, got %d", r.Len())
	}
}

func TestRegistryUnregisterIdempotent(t *testing.T) {
	r := NewRegistry()

	c := testConn("c1", "org-1", "")
	if err := r.Register(c); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if removed := r.Unregister("c1"); removed != c {
		t.Fatal("first Unregister should return the connection")
	}
	if removed := r.Unregister("c1"); removed != nil {
		t.Fatal("second Unregister should return nil")
	}
	if removed := r.Unregister("missing"); removed != nil {
		t.Fatal("Unregister of unknown id should return nil")
	}
	if r.Len() != 0 {
		t.Fatalf("expected 0 connections, got %d", r.Len())
	}
}

func TestRegistryListByOrganization(t *testing.T) {
	r := NewRegistry()

	for _, c := range []*Connection{
		testConn("c1", "org-1", ""),
		testConn("c2", "org-1", ""),
		testConn("c3", "org-2", ""),
	} {
		if err := r.Register(c); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	org1 := r.ListByOrganization("org-1")
	if len(org1) != 2 {
		t.Fatalf("expected 2 connections for org-1, got %d", len(org1))
	}
	for _, c := range org1 {
		if c.OrganizationID != "org-1" {
			t.Fatalf("connection %s belongs to %s, not org-1", c.ID, c.OrganizationID)
		}
	}

	if got := r.ListByOrganization("org-3"); len(got) != 0 {
		t.Fatalf("expected no connections for org-3, got %d", len(got))
	}
}

func TestConnectionIdentity(t *testing.T) {
	withUser := testConn("c1", "org-1", "user-42")
	if got := withUser.Identity(); got != "user-42" {
		t.Fatalf("expected user identity, got %q", got)
	}

	anonymous := testConn("c2", "org-1", "")
	if got := anonymous.Identity(); got != "c2" {
		t.Fatalf("expected connection id fallback, got %q", got)
	}
}

func TestConnectionEnqueueAfterClose(t *testing.T) {
	c := testConn("c1", "org-1", "")
	c.Close()
	c.Close() // safe to repeat

	if err := c.Enqueue([]byte("{}")); err != ErrConnectionClosed {
		t.Fatalf("expected ErrConnectionClosed, got %v", err)
	}
}

func TestConnectionEnqueueBufferFull(t *testing.T) {
	c := testConn("c1", "org-1", "")

	for i := 0; i < sendBufferSize; i++ {
		if err := c.Enqueue([]byte("{}")); err != nil {
			t.Fatalf("enqueue %d failed: %v", i, err)
		}
	}
	if err := c.Enqueue([]byte("{}")); err != ErrSendBufferFull {
		t.Fatalf("expected ErrSendBufferFull, got %v", err)
	}
}
