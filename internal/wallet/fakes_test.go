package wallet

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

type fakeProvider struct {
	mu    sync.Mutex
	calls map[string]int

	token       string
	exchangeErr error
	user        ProviderUser
	userErr     error
	caps        Capabilities
	capsErr     error
	balance     decimal.Decimal
	balanceErr  error
	card        string
	cardErr     error

	// duringBalance runs while the balance call is outstanding.
	duringBalance func()
}

func (p *fakeProvider) record(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.calls == nil {
		p.calls = map[string]int{}
	}
	p.calls[name]++
}

func (p *fakeProvider) Calls(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[name]
}

func (p *fakeProvider) ExchangeCode(_ context.Context, _ string) (string, error) {
	p.record("ExchangeCode")
	return p.token, p.exchangeErr
}

func (p *fakeProvider) GetUser(_ context.Context, _ string) (ProviderUser, error) {
	p.record("GetUser")
	return p.user, p.userErr
}

func (p *fakeProvider) GetCapabilities(_ context.Context, _ string) (Capabilities, error) {
	p.record("GetCapabilities")
	return p.caps, p.capsErr
}

func (p *fakeProvider) GetCardBalance(_ context.Context, _, _ string) (decimal.Decimal, error) {
	p.record("GetCardBalance")
	if p.duringBalance != nil {
		p.duringBalance()
	}
	return p.balance, p.balanceErr
}

func (p *fakeProvider) EnsureCard(_ context.Context, _ string) (string, error) {
	p.record("EnsureCard")
	return p.card, p.cardErr
}

type notice struct {
	kind string
	code string
	args []string
	from string
	to   string
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (n *recordingNotifier) ShowNotification(_ context.Context, code string, args []string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{kind: "show", code: code, args: args})
	return nil
}

func (n *recordingNotifier) WalletDisconnected(_ context.Context, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{kind: "disconnected"})
	return nil
}

func (n *recordingNotifier) StatusChanged(_ context.Context, _, from, to string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{kind: "status", from: from, to: to})
	return nil
}

func (n *recordingNotifier) Kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]string, 0, len(n.notices))
	for _, nt := range n.notices {
		kinds = append(kinds, nt.kind)
	}
	return kinds
}

func (n *recordingNotifier) Find(kind string) (notice, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, nt := range n.notices {
		if nt.kind == kind {
			return nt, true
		}
	}
	return notice{}, false
}
