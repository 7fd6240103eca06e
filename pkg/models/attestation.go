package models

// PlatformType identifies the TEE platform an enclave runs on
type PlatformType string

const (
	PlatformSGX       PlatformType = "sgx"
	PlatformTDX       PlatformType = "tdx"
	PlatformSEV       PlatformType = "sev"
	PlatformSimulated PlatformType = "simulated"
)

// RuntimeReport is the behavioural profile an enclave claims for one execution.
// The nonce makes otherwise identical reports distinct on the wire.
type RuntimeReport struct {
	AgentID         string   `json:"agentId"`
	CodeHash        string   `json:"codeHash"` // 64-hex SHA-256
	ExecutionTimeMs int64    `json:"executionTimeMs"`
	APICallsMade    []string `json:"apiCallsMade"`
	DataAccessed    []string `json:"dataAccessed"`
	Errors          []string `json:"errors"`
	PeakMemoryBytes int64    `json:"peakMemoryBytes"`
	Timestamp       int64    `json:"timestamp"` // milliseconds
	Nonce           string   `json:"nonce"`     // 16-byte hex
}

// Attestation is a signed runtime report from an enclave
type Attestation struct {
	ID              string        `json:"id"`
	EnclaveID       string        `json:"enclaveId"`
	PlatformType    PlatformType  `json:"platformType"`
	Report          RuntimeReport `json:"report"`
	Signature       string        `json:"signature"` // Ed25519 over canonical report bytes, hex
	PublicKey       string        `json:"publicKey"` // hex
	AttestationHash string        `json:"attestationHash"` // SHA-256 of the canonical attestation body, 64 hex
}

// CodeHashPin is the known-good code hash registered for an agent
type CodeHashPin struct {
	AgentID        string `json:"agentId"`
	CodeHash       string `json:"codeHash"`
	PinnedAt       int64  `json:"pinnedAt"` // unix seconds
	PinnedBy       string `json:"pinnedBy"`
	AuditReference string `json:"auditReference,omitempty"`
}

// VerificationResult is the structured outcome of the attestation pipeline.
// A failed attestation is an observation, not an error: every step records
// its pass/fail independently so downstream code can see why trust moved.
type VerificationResult struct {
	AttestationID   string   `json:"attestationId"`
	AgentID         string   `json:"agentId"`
	SignatureValid  bool     `json:"signatureValid"`
	CodeHashMatch   bool     `json:"codeHashMatch"`
	PlatformKnown   bool     `json:"platformKnown"`
	ReportFresh     bool     `json:"reportFresh"`
	BehaviourNormal bool     `json:"behaviourNormal"`
	Valid           bool     `json:"valid"`         // signature AND platform AND fresh
	Tier3Eligible   bool     `json:"tier3Eligible"` // all five checks
	TrustMultiplier float64  `json:"trustMultiplier"`
	Notes           []string `json:"notes"` // operator-facing step log
	VerifiedAtMs    int64    `json:"verifiedAtMs"`
}

// TEEStatus summarizes the verification posture of an agent
type TEEStatus string

const (
	TEEVerified     TEEStatus = "verified"
	TEEStale        TEEStatus = "stale"
	TEEMismatch     TEEStatus = "mismatch"
	TEEFailed       TEEStatus = "failed"
	TEEUnregistered TEEStatus = "unregistered"
)

// AgentTEEState is the derived aggregate the TEE store maintains per agent
type AgentTEEState struct {
	AgentID               string              `json:"agentId"`
	Pin                   *CodeHashPin        `json:"pin,omitempty"`
	LatestAttestation     *Attestation        `json:"latestAttestation,omitempty"`
	LatestVerification    *VerificationResult `json:"latestVerification,omitempty"`
	TotalAttestations     int                 `json:"totalAttestations"`
	SuccessfulCount       int                 `json:"successfulCount"`
	FailedCount           int                 `json:"failedCount"`
	Status                TEEStatus           `json:"status"`
	Tier3Active           bool                `json:"tier3Active"`
	TrustWeightMultiplier float64             `json:"trustWeightMultiplier"` // 0.5 - 2.0
}
