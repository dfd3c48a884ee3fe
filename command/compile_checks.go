package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[ReconcileEventMessage]    = (*ReconcileEventCommand)(nil)
	_ gocmd.Commander[VerifyPaymentMessage]     = (*VerifyPaymentCommand)(nil)
	_ gocmd.Commander[InitializePaymentMessage] = (*InitializePaymentCommand)(nil)
	_ gocmd.Commander[ReplayDeadLetterMessage]  = (*ReplayDeadLetterCommand)(nil)
)
