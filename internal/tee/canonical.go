package tee

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/skillmesh/trust-engine/pkg/models"
)

// Canonical encodings for signing and hashing.
//
// encoding/json marshals struct fields in declaration order, which makes
// the struct definition itself the canonical field order. Both the enclave
// SDK and the verifier marshal the same types, so the bytes agree without
// a separate canonicalisation pass. Map-typed fields would break this;
// the report and attestation types deliberately carry none.

// CanonicalReportBytes returns the byte encoding the enclave signs
func CanonicalReportBytes(report models.RuntimeReport) ([]byte, error) {
	return json.Marshal(report)
}

// attestationBody is the attestation minus its own hash and signature
type attestationBody struct {
	ID           string               `json:"id"`
	EnclaveID    string               `json:"enclaveId"`
	PlatformType models.PlatformType  `json:"platformType"`
	Report       models.RuntimeReport `json:"report"`
	PublicKey    string               `json:"publicKey"`
}

// AttestationHash computes the 64-hex SHA-256 of the canonical attestation body
func AttestationHash(att models.Attestation) (string, error) {
	body := attestationBody{
		ID:           att.ID,
		EnclaveID:    att.EnclaveID,
		PlatformType: att.PlatformType,
		Report:       att.Report,
		PublicKey:    att.PublicKey,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
