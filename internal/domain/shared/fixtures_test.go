package shared

import (
	"context"
	"errors"
)

type accountProps struct {
	Name    string
	Balance int
	Tags    []string
	Limits  map[string]int
	Owner   *string
}

type account struct {
	BaseAggregateRoot[accountProps]
	handled []string
}

func newAccount(name string, opts ...AggregateOption) *account {
	a := &account{BaseAggregateRoot: NewBaseAggregateRoot(accountProps{Name: name}, opts...)}
	a.registerHandlers()
	return a
}

func (a *account) registerHandlers() {
	OnEvent(&a.BaseAggregateRoot, func(e *moneyDeposited) {
		a.handled = append(a.handled, e.EventType())
		a.Update(func(p *accountProps) {
			p.Balance += e.Amount
		})
	})
	OnEvent(&a.BaseAggregateRoot, func(e *accountRenamed) {
		a.handled = append(a.handled, e.EventType())
		a.Update(func(p *accountProps) {
			p.Name = e.Name
		})
	})
}

func (a *account) Deposit(ctx context.Context, amount int) error {
	return a.Apply(ctx, newMoneyDeposited(a.GetID(), amount))
}

type moneyDeposited struct {
	BaseDomainEvent
	Amount int `json:"amount"`
}

func newMoneyDeposited(id UUID, amount int) *moneyDeposited {
	return &moneyDeposited{
		BaseDomainEvent: NewBaseDomainEvent("MoneyDeposited", "Account", id),
		Amount:          amount,
	}
}

type accountRenamed struct {
	BaseDomainEvent
	Name string `json:"name"`
}

func newAccountRenamed(id UUID, name string) *accountRenamed {
	return &accountRenamed{
		BaseDomainEvent: NewBaseDomainEvent("AccountRenamed", "Account", id),
		Name:            name,
	}
}

// unhandledEvent has no registered handler
type unhandledEvent struct {
	BaseDomainEvent
}

type lineProps struct {
	SKU string
	Qty int
}

type line struct {
	BaseEntity[lineProps]
}

func newLine(sku string, qty int) *line {
	return &line{BaseEntity: NewBaseEntity(lineProps{SKU: sku, Qty: qty})}
}

func restoredLine(sku string, qty int) *line {
	l := &line{BaseEntity: NewBaseEntity(lineProps{SKU: sku, Qty: qty})}
	l.SetSaved()
	return l
}

// recordingPublisher captures every Publish call
type recordingPublisher struct {
	calls [][]DomainEvent
	err   error
}

func (p *recordingPublisher) Publish(_ context.Context, events ...DomainEvent) error {
	if p.err != nil {
		return p.err
	}
	p.calls = append(p.calls, events)
	return nil
}

func (p *recordingPublisher) published() []DomainEvent {
	var all []DomainEvent
	for _, call := range p.calls {
		all = append(all, call...)
	}
	return all
}

var errPublish = errors.New("broker unavailable")
