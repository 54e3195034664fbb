package service

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"evgrid/backend/services/ocpp-server/internal/ocpp/protocol"
	"evgrid/backend/services/ocpp-server/internal/repository"
)

// MeterValueValidator checks the signatures of signed meter values.
type MeterValueValidator struct {
	security StationSecurityStore
	logger   *zap.Logger
}

func NewMeterValueValidator(security StationSecurityStore, logger *zap.Logger) *MeterValueValidator {
	return &MeterValueValidator{security: security, logger: logger}
}

// Validate reports whether every signed sampled value in meterValues verifies. Unsigned
// values are not checked. A value without an embedded public key is checked against the
// station's registered meter key. Only key store failures are returned as errors.
func (v *MeterValueValidator) Validate(ctx context.Context, stationID string, meterValues []protocol.MeterValue) (bool, error) {
	var (
		stationKey    string
		stationKeySet bool
	)

	for i, mv := range meterValues {
		for j, sv := range mv.SampledValue {
			signed := sv.SignedMeterValue
			if signed == nil {
				continue
			}

			key := signed.PublicKey
			if key == "" {
				if !stationKeySet {
					k, err := v.stationKey(ctx, stationID)
					if err != nil {
						return false, err
					}
					stationKey, stationKeySet = k, true
				}
				key = stationKey
			}

			if err := verifySignedMeterValue(*signed, key); err != nil {
				v.logger.Warn("signed meter value rejected",
					zap.String("station_id", stationID),
					zap.Int("meter_value", i),
					zap.Int("sampled_value", j),
					zap.String("signing_method", signed.SigningMethod),
					zap.Error(err),
				)
				return false, nil
			}
		}
	}
	return true, nil
}

func (v *MeterValueValidator) stationKey(ctx context.Context, stationID string) (string, error) {
	info, err := v.security.ReadSecurityInfo(ctx, stationID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("service: read meter key of %s: %w", stationID, err)
	}
	return info.MeterPublicKey, nil
}

type ocmfSignature struct {
	SA string `json:"SA"`
	SE string `json:"SE"`
	SD string `json:"SD"`
}

func verifySignedMeterValue(signed protocol.SignedMeterValue, encodedKey string) error {
	if encodedKey == "" {
		return errors.New("no public key")
	}
	if !strings.EqualFold(signed.EncodingMethod, protocol.EncodingOCMF) {
		return fmt.Errorf("unsupported encoding %q", signed.EncodingMethod)
	}

	raw, err := base64.StdEncoding.DecodeString(signed.SignedMeterData)
	if err != nil {
		return fmt.Errorf("decode signed meter data: %w", err)
	}
	payload, sig, err := splitOCMF(string(raw))
	if err != nil {
		return err
	}

	method := sig.SA
	if method == "" {
		method = signed.SigningMethod
	}
	signature, err := decodeSignature(sig)
	if err != nil {
		return err
	}

	pub, err := parsePublicKey(encodedKey)
	if err != nil {
		return err
	}
	return verifySignature(method, pub, []byte(payload), signature)
}

// splitOCMF splits "OCMF|<payload>|<signature>" into its payload and signature sections.
func splitOCMF(data string) (string, ocmfSignature, error) {
	const header = protocol.EncodingOCMF + "|"
	if !strings.HasPrefix(data, header) {
		return "", ocmfSignature{}, errors.New("missing OCMF header")
	}
	body := data[len(header):]
	sep := strings.LastIndex(body, "|")
	if sep <= 0 {
		return "", ocmfSignature{}, errors.New("missing OCMF signature section")
	}

	var sig ocmfSignature
	if err := json.Unmarshal([]byte(body[sep+1:]), &sig); err != nil {
		return "", ocmfSignature{}, fmt.Errorf("decode OCMF signature: %w", err)
	}
	if sig.SD == "" {
		return "", ocmfSignature{}, errors.New("empty OCMF signature")
	}
	return body[:sep], sig, nil
}

func decodeSignature(sig ocmfSignature) ([]byte, error) {
	switch strings.ToLower(sig.SE) {
	case "", "hex":
		return hex.DecodeString(sig.SD)
	case "base64":
		return base64.StdEncoding.DecodeString(sig.SD)
	default:
		return nil, fmt.Errorf("unsupported signature encoding %q", sig.SE)
	}
}

// parsePublicKey accepts a PEM block or hex/base64 encoded DER SubjectPublicKeyInfo.
func parsePublicKey(encoded string) (crypto.PublicKey, error) {
	encoded = strings.TrimSpace(encoded)

	if block, _ := pem.Decode([]byte(encoded)); block != nil {
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		return pub, nil
	}

	for _, decode := range []func(string) ([]byte, error){hex.DecodeString, base64.StdEncoding.DecodeString} {
		der, err := decode(encoded)
		if err != nil {
			continue
		}
		if pub, err := x509.ParsePKIXPublicKey(der); err == nil {
			return pub, nil
		}
	}
	return nil, errors.New("unrecognised public key encoding")
}

func verifySignature(method string, pub crypto.PublicKey, payload, signature []byte) error {
	switch method {
	case protocol.SigningECDSAP256SHA256:
		digest := sha256.Sum256(payload)
		return verifyECDSA(pub, elliptic.P256(), digest[:], signature)
	case protocol.SigningECDSAP384SHA384:
		digest := sha512.Sum384(payload)
		return verifyECDSA(pub, elliptic.P384(), digest[:], signature)
	case protocol.SigningECDSAP521SHA512:
		digest := sha512.Sum512(payload)
		return verifyECDSA(pub, elliptic.P521(), digest[:], signature)
	case protocol.SigningRSAPKCS1v15, protocol.SigningRSAPSS:
		key, ok := pub.(*rsa.PublicKey)
		if !ok {
			return fmt.Errorf("%s needs an RSA key", method)
		}
		digest := sha256.Sum256(payload)
		if method == protocol.SigningRSAPSS {
			return rsa.VerifyPSS(key, crypto.SHA256, digest[:], signature, nil)
		}
		return rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], signature)
	default:
		return fmt.Errorf("unsupported signing method %q", method)
	}
}

func verifyECDSA(pub crypto.PublicKey, curve elliptic.Curve, digest, signature []byte) error {
	key, ok := pub.(*ecdsa.PublicKey)
	if !ok || key.Curve != curve {
		return fmt.Errorf("key is not on %s", curve.Params().Name)
	}
	if !ecdsa.VerifyASN1(key, digest, signature) {
		return errors.New("signature mismatch")
	}
	return nil
}
