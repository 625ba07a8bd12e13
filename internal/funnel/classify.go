package funnel

import (
	"context"
	"errors"

	"github.com/bearound/booking-funnel/internal/booking"
	"github.com/bearound/booking-funnel/internal/payments"
)

// User-facing messages.
const (
	MsgMissingDate          = "Seleziona una data per l'esperienza"
	MsgInvalidParticipants  = "Il numero di partecipanti deve essere almeno 1"
	MsgMissingStructure     = "Seleziona la struttura per il trasporto"
	MsgUnknownStructure     = "La struttura selezionata non è disponibile"
	MsgMissingExperience    = "Informazioni sull'esperienza mancanti"
	MsgDateNotSelectable    = "La data selezionata non è disponibile"
	MsgInvalidTimezone      = "Fuso orario non valido"
	MsgInvalidMonth         = "Mese non valido"
	MsgMissingPaymentMethod = "Inserisci un metodo di pagamento"
	MsgIntentFailed         = "Errore durante la creazione del pagamento"
	MsgAvailabilityFailed   = "Impossibile verificare la disponibilità, riprova"
	MsgPaymentFailed        = "Si è verificato un errore durante il pagamento"
	MsgPaymentUnreachable   = "Impossibile contattare il servizio di pagamento, riprova"
	MsgPaymentSucceeded     = "Pagamento completato"
	MsgConfirmationInFlight = "Pagamento già in corso"
	MsgSubmissionInFlight   = "Richiesta di pagamento già in corso"
	MsgStaleIntent          = "La prenotazione è cambiata, procedi di nuovo al pagamento"
	MsgDraftLocked          = "La prenotazione non può essere modificata in questo momento"
	MsgCalendarLocked       = "Il calendario non è modificabile durante il pagamento"
	MsgInvalidTransition    = "Operazione non consentita in questo momento"
	MsgSessionNotFound      = "Sessione non trovata o scaduta"
	MsgInternal             = "Si è verificato un errore"
)

// Classify maps err to its kind and the message shown to the user.
func Classify(err error) (ErrorKind, string) {
	if err == nil {
		return "", ""
	}

	var verr *booking.ValidationError
	if errors.As(err, &verr) {
		switch verr.Field {
		case booking.FieldDate:
			return KindValidation, MsgMissingDate
		case booking.FieldParticipants:
			return KindValidation, MsgInvalidParticipants
		case booking.FieldStructure:
			return KindValidation, MsgMissingStructure
		}
		return KindValidation, MsgInternal
	}

	var perr *payments.PaymentError
	if errors.As(err, &perr) {
		if perr.Ambiguous() || perr.Message == "" || perr.Message == payments.GenericFailureMessage {
			return KindPayment, MsgPaymentFailed
		}
		return KindPayment, perr.Message
	}

	var nerr *booking.NetworkError
	if errors.As(err, &nerr) {
		if nerr.Op == opConfirmPayment {
			return KindNetwork, MsgPaymentUnreachable
		}
		return KindNetwork, MsgIntentFailed
	}

	switch {
	case errors.Is(err, booking.ErrMissingExperience):
		return KindValidation, MsgMissingExperience
	case errors.Is(err, ErrDateNotSelectable):
		return KindValidation, MsgDateNotSelectable
	case errors.Is(err, ErrInvalidTimezone):
		return KindValidation, MsgInvalidTimezone
	case errors.Is(err, ErrUnknownStructure):
		return KindValidation, MsgUnknownStructure
	case errors.Is(err, ErrInvalidMonth):
		return KindValidation, MsgInvalidMonth
	case errors.Is(err, payments.ErrMissingPaymentMethod):
		return KindValidation, MsgMissingPaymentMethod
	case errors.Is(err, ErrSessionNotFound):
		return KindNotFound, MsgSessionNotFound
	case errors.Is(err, payments.ErrConfirmationInFlight):
		return KindState, MsgConfirmationInFlight
	case errors.Is(err, ErrSubmissionInFlight):
		return KindState, MsgSubmissionInFlight
	case errors.Is(err, ErrStaleIntent), errors.Is(err, payments.ErrMissingClientSecret):
		return KindState, MsgStaleIntent
	case errors.Is(err, ErrDraftLocked):
		return KindState, MsgDraftLocked
	case errors.Is(err, ErrCalendarLocked):
		return KindState, MsgCalendarLocked
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrSessionExists):
		return KindState, MsgInvalidTransition
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindNetwork, MsgIntentFailed
	}
	return KindInternal, MsgInternal
}
