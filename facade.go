package payments

import (
	"fmt"

	gocmdadapter "github.com/goliatone/go-payments/adapters/gocommand"
	paymentscommand "github.com/goliatone/go-payments/command"
	paymentsquery "github.com/goliatone/go-payments/query"
)

type Commands struct {
	Reconcile         *paymentscommand.ReconcileEventCommand
	VerifyPayment     *paymentscommand.VerifyPaymentCommand
	InitializePayment *paymentscommand.InitializePaymentCommand
	ReplayDeadLetter  *paymentscommand.ReplayDeadLetterCommand
}

type Queries struct {
	GetOrder        *paymentsquery.GetOrderQuery
	GetRetryTask    *paymentsquery.GetRetryTaskQuery
	ListDeadLetters *paymentsquery.ListDeadLettersQuery
}

// Facade exposes the subsystem's operations as go-command messages so hosts
// can dispatch them through a shared registry.
type Facade struct {
	service  *Service
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	taskReader paymentsquery.RetryTaskReader
}

// WithRetryTaskReader overrides the ledger read side, for hosts that serve
// dead-letter views from a replica.
func WithRetryTaskReader(reader paymentsquery.RetryTaskReader) FacadeOption {
	return func(options *facadeOptions) {
		options.taskReader = reader
	}
}

func NewFacade(service *Service, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("payments: service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	taskReader := cfg.taskReader
	if taskReader == nil {
		taskReader = service.Tasks()
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		Reconcile:         paymentscommand.NewReconcileEventCommand(service.Engine()),
		VerifyPayment:     paymentscommand.NewVerifyPaymentCommand(service.Gateway(), service.Engine()),
		InitializePayment: paymentscommand.NewInitializePaymentCommand(service.Gateway(), service.Orders()),
		ReplayDeadLetter:  paymentscommand.NewReplayDeadLetterCommand(service.Pipeline()),
	}
	facade.queries = Queries{
		GetOrder:        paymentsquery.NewGetOrderQuery(service.Orders()),
		GetRetryTask:    paymentsquery.NewGetRetryTaskQuery(taskReader),
		ListDeadLetters: paymentsquery.NewListDeadLettersQuery(taskReader),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() *Service {
	if f == nil {
		return nil
	}
	return f.service
}

// Register subscribes every command and query on the dispatcher and records
// them in the registry. Returned subscriptions stay active until the caller
// unsubscribes them.
func (f *Facade) Register(adapter *gocmdadapter.RegistryAdapter) ([]gocmdadapter.Subscription, error) {
	if f == nil {
		return nil, fmt.Errorf("payments: facade is required")
	}
	if adapter == nil {
		return nil, fmt.Errorf("payments: registry adapter is required")
	}

	subscriptions := make([]gocmdadapter.Subscription, 0, 7)
	unsubscribeAll := func() {
		for _, sub := range subscriptions {
			if sub != nil {
				sub.Unsubscribe()
			}
		}
	}

	commandSub, err := gocmdadapter.RegisterAndSubscribe(adapter, f.commands.Reconcile)
	if err != nil {
		return nil, err
	}
	subscriptions = append(subscriptions, commandSub)

	if commandSub, err = gocmdadapter.RegisterAndSubscribe(adapter, f.commands.VerifyPayment); err != nil {
		unsubscribeAll()
		return nil, err
	}
	subscriptions = append(subscriptions, commandSub)

	if commandSub, err = gocmdadapter.RegisterAndSubscribe(adapter, f.commands.InitializePayment); err != nil {
		unsubscribeAll()
		return nil, err
	}
	subscriptions = append(subscriptions, commandSub)

	if commandSub, err = gocmdadapter.RegisterAndSubscribe(adapter, f.commands.ReplayDeadLetter); err != nil {
		unsubscribeAll()
		return nil, err
	}
	subscriptions = append(subscriptions, commandSub)

	querySub, err := gocmdadapter.RegisterAndSubscribeQuery(adapter, f.queries.GetOrder)
	if err != nil {
		unsubscribeAll()
		return nil, err
	}
	subscriptions = append(subscriptions, querySub)

	if querySub, err = gocmdadapter.RegisterAndSubscribeQuery(adapter, f.queries.GetRetryTask); err != nil {
		unsubscribeAll()
		return nil, err
	}
	subscriptions = append(subscriptions, querySub)

	if querySub, err = gocmdadapter.RegisterAndSubscribeQuery(adapter, f.queries.ListDeadLetters); err != nil {
		unsubscribeAll()
		return nil, err
	}
	subscriptions = append(subscriptions, querySub)

	return subscriptions, nil
}
