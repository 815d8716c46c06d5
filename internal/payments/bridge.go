package payments

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BridgeProcessor is the default Processor for deployments where the
// physical terminal is driven by an external bridge collaborator. Request
// registers the transaction and logs it for the bridge to pick up; the
// bridge reports the outcome back through the payment notification webhook.
// Transaction state is tracked in memory for Status/Cancel.
type BridgeProcessor struct {
	mu  sync.Mutex
	txs map[string]State
	log zerolog.Logger
}

func NewBridgeProcessor(log zerolog.Logger) *BridgeProcessor {
	return &BridgeProcessor{
		txs: make(map[string]State),
		log: log,
	}
}

func (p *BridgeProcessor) Request(ctx context.Context, sessionID string, amountCents int64, currency string) (string, error) {
	txID := uuid.NewString()

	p.mu.Lock()
	p.txs[txID] = StatePending
	p.mu.Unlock()

	p.log.Info().
		Str("transaction_id", txID).
		Str("session_id", sessionID).
		Int64("amount_cents", amountCents).
		Str("currency", currency).
		Msg("payment transaction requested")
	return txID, nil
}

func (p *BridgeProcessor) Status(ctx context.Context, transactionID string) (State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.txs[transactionID]
	if !ok {
		return "", ErrUnknownTransaction
	}
	return state, nil
}

func (p *BridgeProcessor) Cancel(ctx context.Context, transactionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.txs[transactionID]
	if !ok {
		return ErrUnknownTransaction
	}
	if !state.Terminal() {
		p.txs[transactionID] = StateCancelled
	}
	return nil
}

// MarkState records a state reported by the bridge. Called from the
// notification path so later Status queries agree with what was delivered.
func (p *BridgeProcessor) MarkState(transactionID string, state State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.txs[transactionID] = state
}
