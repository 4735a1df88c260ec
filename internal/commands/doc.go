// Package commands maps chat commands onto ledger operations.
//
// Each command word resolves to a Verb through an alias table that accepts
// English and Chinese forms, with or without a leading slash. The Dispatcher
// runs the verb against the check-in, admin, report and backup services and
// renders the outcome as a Reply. Errors are classified with apperror kinds:
// user mistakes are echoed back, storage and upstream failures are logged and
// answered with a generic message.
package commands
