package webhook

import "testing"

func TestSignVerifyRoundTrip(t *testing.T) {
	body := []byte(`{"event_id":"e1"}`)
	sig := Sign("topsecret", body)
	if !Verify("topsecret", body, sig) {
		t.Fatal("expected signature to verify with correct secret")
	}
}

func TestVerifyFailsWithWrongSecret(t *testing.T) {
	body := []byte(`{"event_id":"e1"}`)
	sig := Sign("topsecret", body)
	if Verify("wrongsecret", body, sig) {
		t.Fatal("expected signature verification to fail with wrong secret")
	}
}

func TestVerifyFailsWithTamperedBody(t *testing.T) {
	sig := Sign("topsecret", []byte(`{"event_id":"e1"}`))
	if Verify("topsecret", []byte(`{"event_id":"e2"}`), sig) {
		t.Fatal("expected signature verification to fail for tampered body")
	}
}

func TestBuildEnvelopeAndMarshalDeterministic(t *testing.T) {
	ev := Event{
		EventID: "e1", TenantID: "t1", EventType: "session.completed",
		Payload: map[string]any{"flow_id": "f1"},
	}
	e := BuildEnvelope(ev, 1700000000)
	body, err := MarshalEnvelope(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(body) == 0 {
		t.Fatal("expected non-empty envelope body")
	}
	headers := SignatureHeaders(e, Sign("s", body))
	for _, k := range []string{"Content-Type", "X-Webhook-Signature", "X-Event-Type", "X-Event-ID", "X-Tenant-ID", "X-Timestamp"} {
		if headers[k] == "" {
			t.Fatalf("expected header %s to be set", k)
		}
	}
}
