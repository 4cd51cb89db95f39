package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gabapcia/supplyledger/internal/pkg/validator"
)

// Kind tags the variant of a supply-chain transaction.
type Kind string

const (
	// KindCreation records a product entering the supply chain.
	KindCreation Kind = "creation"

	// KindTransfer records custody of a product moving between parties.
	KindTransfer Kind = "transfer"

	// KindVerification records an inspection result for a product.
	KindVerification Kind = "verification"
)

// ShipmentStatus is the state a product assumes after a transfer.
// Only the declared values are accepted at admission.
type ShipmentStatus string

const (
	StatusCreated   ShipmentStatus = "created"
	StatusInTransit ShipmentStatus = "in_transit"
	StatusDelivered ShipmentStatus = "delivered"
	StatusReceived  ShipmentStatus = "received"
)

// VerificationResult is the outcome of a product inspection.
type VerificationResult string

const (
	ResultPassed VerificationResult = "passed"
	ResultFailed VerificationResult = "failed"
)

// ErrUnknownTransactionKind is returned when decoding or validating a
// transaction whose kind tag does not match any known variant.
var ErrUnknownTransactionKind = errors.New("unknown transaction kind")

// Payload is the variant-specific body of a transaction. Each variant
// declares its own required fields via `validate` tags and reports the
// product it refers to.
type Payload interface {
	// Product returns the identifier of the product this event refers to.
	Product() string

	// kind returns the variant tag the payload belongs to. It is unexported
	// so the set of variants stays closed within this package.
	kind() Kind
}

// CreationPayload describes a product entering the supply chain.
type CreationPayload struct {
	SupplierID  string `json:"supplier_id" validate:"required"`
	ProductID   string `json:"product_id" validate:"required"`
	ProductName string `json:"product_name" validate:"required"`
	Description string `json:"description" validate:"required"`
	Origin      string `json:"origin" validate:"required"`
}

func (p CreationPayload) Product() string { return p.ProductID }
func (p CreationPayload) kind() Kind      { return KindCreation }

// TransferPayload describes custody of a product moving between two parties.
type TransferPayload struct {
	FromParty    string         `json:"from_party" validate:"required"`
	ToParty      string         `json:"to_party" validate:"required"`
	ProductID    string         `json:"product_id" validate:"required"`
	FromLocation string         `json:"from_location" validate:"required"`
	ToLocation   string         `json:"to_location" validate:"required"`
	NewStatus    ShipmentStatus `json:"new_status" validate:"required,oneof=created in_transit delivered received"`
}

func (p TransferPayload) Product() string { return p.ProductID }
func (p TransferPayload) kind() Kind      { return KindTransfer }

// VerificationPayload describes an inspection performed on a product.
type VerificationPayload struct {
	VerifierID string             `json:"verifier_id" validate:"required"`
	ProductID  string             `json:"product_id" validate:"required"`
	Result     VerificationResult `json:"result" validate:"required,oneof=passed failed"`
	Notes      string             `json:"notes"`
}

func (p VerificationPayload) Product() string { return p.ProductID }
func (p VerificationPayload) kind() Kind      { return KindVerification }

// Transaction is a single supply-chain event. It is validated once at
// admission and immutable afterwards; after mining it is owned by exactly
// one block and only ever read.
type Transaction struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Payload   Payload   `json:"payload"`
}

// newTransaction stamps a transaction with the current UTC time and the
// payload's own kind tag.
func newTransaction(id string, payload Payload) Transaction {
	return Transaction{
		ID:        id,
		Kind:      payload.kind(),
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// NewCreation builds a creation transaction with the given caller-supplied ID.
func NewCreation(id string, payload CreationPayload) Transaction {
	return newTransaction(id, payload)
}

// NewTransfer builds a transfer transaction with the given caller-supplied ID.
func NewTransfer(id string, payload TransferPayload) Transaction {
	return newTransaction(id, payload)
}

// NewVerification builds a verification transaction with the given
// caller-supplied ID.
func NewVerification(id string, payload VerificationPayload) Transaction {
	return newTransaction(id, payload)
}

// Validate checks that the transaction is fully well-formed: a non-blank ID,
// a kind tag matching the payload variant, and every variant-required field
// present. A transaction either passes completely or is rejected; there is
// no partially valid state.
//
// All failures are reported through validator.ErrValidation so callers can
// detect them with errors.Is.
func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("%w: 'ID': transaction id must not be blank", validator.ErrValidation)
	}

	if t.Payload == nil {
		return fmt.Errorf("%w: 'Payload': transaction payload is missing", validator.ErrValidation)
	}

	if t.Kind != t.Payload.kind() {
		return fmt.Errorf("%w: 'Kind': tag %q does not match payload variant %q",
			validator.ErrValidation, t.Kind, t.Payload.kind())
	}

	return validator.Validate(t.Payload)
}

// transactionEnvelope mirrors Transaction with the payload kept raw, so the
// concrete variant can be decoded after the kind tag is known.
type transactionEnvelope struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// UnmarshalJSON decodes a transaction, dispatching on the kind tag to pick
// the concrete payload variant. It returns ErrUnknownTransactionKind for
// unrecognized tags.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	var env transactionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	var payload Payload
	switch env.Kind {
	case KindCreation:
		var p CreationPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		payload = p
	case KindTransfer:
		var p TransferPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		payload = p
	case KindVerification:
		var p VerificationPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		payload = p
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTransactionKind, env.Kind)
	}

	t.ID = env.ID
	t.Kind = env.Kind
	t.Timestamp = env.Timestamp
	t.Payload = payload
	return nil
}
