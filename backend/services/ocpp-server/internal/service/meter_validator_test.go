package service

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"evgrid/backend/services/ocpp-server/internal/models"
	"evgrid/backend/services/ocpp-server/internal/ocpp/protocol"
	"evgrid/backend/services/ocpp-server/internal/repository/memory"
)

const ocmfPayload = `{"FV":"1.0","GI":"EVGRID","PG":"T1","RD":[{"TM":"2024-01-01T10:00:00,000+0000 S","RV":1.000,"RI":"01-00:98.08.00.FF","RU":"kWh"}]}`

func TestValidateSkipsUnsignedValues(t *testing.T) {
	v := NewMeterValueValidator(memory.NewStore(), zap.NewNop())

	ok, err := v.Validate(context.Background(), "CS1", []protocol.MeterValue{energy(time.Now(), 10)})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestValidateEmbeddedPublicKey(t *testing.T) {
	signer := newMeterSigner(t)
	v := NewMeterValueValidator(memory.NewStore(), zap.NewNop())

	ok, err := v.Validate(context.Background(), "CS1", []protocol.MeterValue{
		signedValue(signer.sign(t, ocmfPayload), signer.publicKeyHex(t)),
	})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestValidateFallsBackToStationKey(t *testing.T) {
	signer := newMeterSigner(t)
	store := memory.NewStore()
	store.PutSecurityInfo(models.StationSecurityInfo{StationID: "CS1", MeterPublicKey: signer.publicKeyHex(t)})
	v := NewMeterValueValidator(store, zap.NewNop())

	ok, err := v.Validate(context.Background(), "CS1", []protocol.MeterValue{
		signedValue(signer.sign(t, ocmfPayload), ""),
		signedValue(signer.sign(t, ocmfPayload), ""),
	})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.Validate(context.Background(), "CS2", []protocol.MeterValue{signedValue(signer.sign(t, ocmfPayload), "")})
	require.NoError(t, err)
	assert.False(t, ok, "no key registered for CS2")
}

func TestValidateOneBadSignatureFailsBatch(t *testing.T) {
	signer := newMeterSigner(t)
	other := newMeterSigner(t)
	v := NewMeterValueValidator(memory.NewStore(), zap.NewNop())

	ok, err := v.Validate(context.Background(), "CS1", []protocol.MeterValue{
		signedValue(signer.sign(t, ocmfPayload), signer.publicKeyHex(t)),
		signedValue(other.sign(t, ocmfPayload), signer.publicKeyHex(t)),
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidateRejectsTamperedPayload(t *testing.T) {
	signer := newMeterSigner(t)
	v := NewMeterValueValidator(memory.NewStore(), zap.NewNop())

	data := signer.sign(t, ocmfPayload)
	raw, err := base64.StdEncoding.DecodeString(data)
	require.NoError(t, err)
	tampered := []byte(string(raw))
	tampered[len("OCMF|")+2] = 'X'

	ok, err := v.Validate(context.Background(), "CS1", []protocol.MeterValue{
		signedValue(base64.StdEncoding.EncodeToString(tampered), signer.publicKeyHex(t)),
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidateRejectsMalformedData(t *testing.T) {
	signer := newMeterSigner(t)
	v := NewMeterValueValidator(memory.NewStore(), zap.NewNop())

	for name, data := range map[string]string{
		"not base64":    "%%%",
		"no header":     base64.StdEncoding.EncodeToString([]byte("EDL|x|y")),
		"no signature":  base64.StdEncoding.EncodeToString([]byte("OCMF|" + ocmfPayload)),
		"bad signature": base64.StdEncoding.EncodeToString([]byte("OCMF|" + ocmfPayload + `|{"SA":"ECDSA-secp256r1-SHA256","SD":"zz"}`)),
	} {
		t.Run(name, func(t *testing.T) {
			ok, err := v.Validate(context.Background(), "CS1", []protocol.MeterValue{signedValue(data, signer.publicKeyHex(t))})
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestDecodeSignatureFollowsEncodingField(t *testing.T) {
	raw := []byte{0xde, 0xad, 0xbe, 0xef}

	got, err := decodeSignature(ocmfSignature{SD: "deadbeef"})
	require.NoError(t, err)
	assert.Equal(t, raw, got, "hex when SE is absent")

	got, err = decodeSignature(ocmfSignature{SE: "base64", SD: base64.StdEncoding.EncodeToString(raw)})
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	_, err = decodeSignature(ocmfSignature{SD: base64.StdEncoding.EncodeToString(raw)})
	assert.Error(t, err, "no base64 fallback without SE")

	_, err = decodeSignature(ocmfSignature{SE: "base32", SD: "deadbeef"})
	assert.Error(t, err)
}
