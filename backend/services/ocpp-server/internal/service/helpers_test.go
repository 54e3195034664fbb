package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"evgrid/backend/services/ocpp-server/internal/ocpp"
	"evgrid/backend/services/ocpp-server/internal/ocpp/protocol"
)

type sentCall struct {
	mc      ocpp.MessageContext
	action  string
	payload interface{}
}

type fakeCallSender struct {
	mu    sync.Mutex
	calls []sentCall
	err   error
}

func (f *fakeCallSender) SendCall(ctx context.Context, mc ocpp.MessageContext, action string, payload interface{}) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sentCall{mc: mc, action: action, payload: payload})
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(`{}`), nil
}

func (f *fakeCallSender) snapshot() []sentCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentCall(nil), f.calls...)
}

type published struct {
	subject string
	data    []byte
}

type fakeQueue struct {
	mu       sync.Mutex
	messages []published
	err      error
}

func (q *fakeQueue) Publish(subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.messages = append(q.messages, published{subject: subject, data: append([]byte(nil), data...)})
	return nil
}

func (q *fakeQueue) Close() error { return nil }

func (q *fakeQueue) snapshot() []published {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]published(nil), q.messages...)
}

var errBoom = errors.New("boom")

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func energy(ts time.Time, wh float64) protocol.MeterValue {
	return protocol.MeterValue{
		Timestamp: ts,
		SampledValue: []protocol.SampledValue{{
			Value:         wh,
			Measurand:     protocol.MeasurandEnergyActiveImportRegister,
			UnitOfMeasure: &protocol.UnitOfMeasure{Unit: protocol.UnitWh},
		}},
	}
}

func startedEvent(transactionID string, meterValues ...protocol.MeterValue) *protocol.TransactionEventRequest {
	return &protocol.TransactionEventRequest{
		EventType:       protocol.TransactionEventStarted,
		Timestamp:       time.Now().UTC(),
		TriggerReason:   "Authorized",
		TransactionInfo: protocol.Transaction{TransactionID: transactionID},
		MeterValue:      meterValues,
	}
}

type meterSigner struct {
	key *ecdsa.PrivateKey
}

func newMeterSigner(t *testing.T) *meterSigner {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return &meterSigner{key: key}
}

func (s *meterSigner) publicKeyHex(t *testing.T) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(&s.key.PublicKey)
	require.NoError(t, err)
	return hex.EncodeToString(der)
}

// sign returns base64 OCMF data over payload.
func (s *meterSigner) sign(t *testing.T, payload string) string {
	t.Helper()
	digest := sha256.Sum256([]byte(payload))
	sig, err := ecdsa.SignASN1(rand.Reader, s.key, digest[:])
	require.NoError(t, err)
	section, err := json.Marshal(map[string]string{"SA": protocol.SigningECDSAP256SHA256, "SD": hex.EncodeToString(sig)})
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString([]byte("OCMF|" + payload + "|" + string(section)))
}

func signedValue(data, publicKey string) protocol.MeterValue {
	return protocol.MeterValue{
		Timestamp: time.Now().UTC(),
		SampledValue: []protocol.SampledValue{{
			Value:     1000,
			Measurand: protocol.MeasurandEnergyActiveImportRegister,
			SignedMeterValue: &protocol.SignedMeterValue{
				SignedMeterData: data,
				SigningMethod:   protocol.SigningECDSAP256SHA256,
				EncodingMethod:  protocol.EncodingOCMF,
				PublicKey:       publicKey,
			},
		}},
	}
}
