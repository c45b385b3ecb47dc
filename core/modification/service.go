package modification

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/farafmb/klubhaus/core"
	"github.com/farafmb/klubhaus/core/user"
)

// ErrNotFound is returned when no Modification matches.
var ErrNotFound = errors.New("modification not found")

const (
	acceptedTemplate = "modification-accepted"
	rejectedTemplate = "modification-rejected"
	adminTemplate    = "modification-admin-notification"
)

type (
	Repository interface {
		CreateModification(ctx context.Context, mod Modification, exec ...core.DBExecutor) (Modification, error)
		// QueryModifications returns the matching Modifications, most recent first.
		QueryModifications(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]Modification, error)
		// GetModification returns ErrNotFound if no Modification has filter.ID.
		GetModification(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Modification, error)
		UpdateModification(ctx context.Context, mod Modification, exec ...core.DBExecutor) (Modification, error)
		CountModifications(ctx context.Context, state State, exec ...core.DBExecutor) (int, error)
	}

	// Observer is told about every stored proposal and decision.
	Observer interface {
		ModificationProposed(state State)
		ModificationDecided(state State)
	}

	Service struct {
		tx       core.Transactor
		repo     Repository
		usrRepo  user.Repository
		mailSvc  core.EmailService
		logger   core.Logger
		conf     *core.Config
		fields   []Field
		observer Observer
	}

	// changeLine is a Diff entry as rendered in notification e-mails.
	changeLine struct {
		Label string
		Old   string
		New   string
	}
)

func NewService(
	tx core.Transactor,
	repo Repository,
	usrRepo user.Repository,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) *Service {
	return &Service{
		tx:       tx,
		repo:     repo,
		usrRepo:  usrRepo,
		mailSvc:  mailSvc,
		logger:   logger,
		conf:     conf,
		fields:   TrackedFields(conf.ProfileExtended),
		observer: nopObserver{},
	}
}

func (svc *Service) SetObserver(obs Observer) {
	if obs == nil {
		obs = nopObserver{}
	}
	svc.observer = obs
}

// Fields returns the tracked profile fields.
func (svc *Service) Fields() []Field { return svc.fields }

// Propose stores the changes actor proposes to their own profile.
// Changes only filling in empty fields are accepted and applied at once; anything else waits for a decision.
func (svc *Service) Propose(ctx context.Context, actor, subject user.User, proposed user.Profile) (Modification, error) {
	if actor.ID != subject.ID {
		return Modification{}, core.ErrPermissionDenied
	}

	var mod Modification
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		subj, err := svc.usrRepo.GetUser(ctx, user.GetFilter{ID: subject.ID}, exec)
		if err != nil {
			return errors.Wrap(err, "finding subject")
		}

		diff, err := BuildDiff(svc.fields, subj.Profile(), proposed)
		if err != nil {
			return core.NewValidationError(err)
		}
		if err = svc.checkUniqueness(ctx, subj, diff, exec); err != nil {
			return err
		}

		now := time.Now().UTC()
		mod = Modification{UserID: subj.ID, Content: diff, State: Requested, CreatedAt: now}
		if diff.AutoAcceptable() {
			if err = svc.apply(ctx, subj, diff, now, exec); err != nil {
				return err
			}
			mod.State = Accepted
			mod.DecidedAt = now
		}

		mod, err = svc.repo.CreateModification(ctx, mod, exec)
		return errors.Wrap(err, "creating modification")
	})
	if err != nil {
		return Modification{}, err
	}

	svc.observer.ModificationProposed(mod.State)
	return mod, nil
}

func (svc *Service) Get(ctx context.Context, id string) (Modification, error) {
	return svc.repo.GetModification(ctx, GetFilter{ID: id})
}

// QueryPending returns the Modifications waiting for a decision, most recent first.
func (svc *Service) QueryPending(ctx context.Context) ([]Modification, error) {
	state := Requested
	return svc.repo.QueryModifications(ctx, QueryFilter{State: &state})
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Modification, error) {
	return svc.repo.QueryModifications(ctx, filter)
}

// Decide accepts or rejects a Requested Modification once, applying its changes on acceptance.
// The subject is notified afterwards; delivery failures are only logged.
func (svc *Service) Decide(ctx context.Context, id string, decision Decision, actor user.User, note string) (Modification, error) {
	if !actor.IsAdmin() {
		return Modification{}, core.ErrPermissionDenied
	}
	if decision != Accept && decision != Reject {
		return Modification{}, core.NewValidationError(ErrUnknownDecision, core.FieldError{Field: "decision", Error: ErrUnknownDecision.Error()})
	}

	var (
		mod  Modification
		subj user.User
	)
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if mod, err = svc.repo.GetModification(ctx, GetFilter{ID: id, ForUpdate: true}, exec); err != nil {
			return err
		}
		if mod.State != Requested {
			return ErrInvalidState
		}
		if subj, err = svc.usrRepo.GetUser(ctx, user.GetFilter{ID: mod.UserID}, exec); err != nil {
			return errors.Wrap(err, "finding subject")
		}

		now := time.Now().UTC()
		if decision == Accept {
			if err = svc.checkUniqueness(ctx, subj, mod.Content, exec); err != nil {
				return err
			}
			if err = svc.apply(ctx, subj, mod.Content, now, exec); err != nil {
				return err
			}
		}
		mod.State = decision.State()
		mod.DecidedAt = now
		mod.DecidedBy = actor.ID
		mod.Note = core.CleanString(note)

		mod, err = svc.repo.UpdateModification(ctx, mod, exec)
		return errors.Wrap(err, "updating modification")
	})
	if err != nil {
		return Modification{}, err
	}

	svc.observer.ModificationDecided(mod.State)
	svc.notifySubject(subj, mod)
	return mod, nil
}

// checkUniqueness fails with a validation error when another user already holds
// the e-mail or student ID subj would end up with after diff.
func (svc *Service) checkUniqueness(ctx context.Context, subj user.User, diff Diff, exec core.DBExecutor) error {
	email, hasEmail := diff.Get(Email.Name)
	student, hasStudent := diff.Get(Student.Name)
	if !hasEmail && !hasStudent {
		return nil
	}
	if !hasEmail {
		email.New = subj.Email
	}
	if !hasStudent {
		student.New = subj.Student
	}
	return user.UniquenessError(svc.usrRepo.CheckUniqueness(ctx, email.New, student.New, []user.User{subj}, exec))
}

// NotifyAdmins e-mails every active admin about the pending Modifications, if any.
// Failed deliveries are returned as core.DeliveryErrors.
func (svc *Service) NotifyAdmins(ctx context.Context) (NotifyResult, error) {
	var res NotifyResult

	pending, err := svc.repo.CountModifications(ctx, Requested)
	if err != nil {
		return res, errors.Wrap(err, "counting pending modifications")
	}
	res.Pending = pending
	if pending == 0 {
		return res, nil
	}

	active := true
	admins, err := svc.usrRepo.QueryUsers(ctx, &user.QueryFilter{Roles: []string{user.RoleAdmin}, IsActive: &active}, nil)
	if err != nil {
		return res, errors.Wrap(err, "querying admins")
	}

	msgs := make([]*core.EmailMessage, 0, len(admins))
	for _, admin := range admins {
		msgs = append(msgs, &core.EmailMessage{
			To:           []mail.Address{{Name: admin.FullName(), Address: admin.Email}},
			Subject:      "Pending modification requests",
			TemplateName: adminTemplate,
			TemplateData: map[string]interface{}{
				"first_name": admin.FirstName,
				"amount":     pending,
				"action_url": svc.conf.FrontendBaseURL + "/modifications",
			},
		})
	}
	if len(msgs) == 0 {
		return res, nil
	}

	derrs := svc.mailSvc.SendMessages(msgs...)
	res.Sent = len(msgs) - len(derrs)
	if len(derrs) > 0 {
		return res, core.DeliveryErrors(derrs)
	}
	return res, nil
}

// apply writes diff onto subj and persists it.
func (svc *Service) apply(ctx context.Context, subj user.User, diff Diff, now time.Time, exec core.DBExecutor) error {
	if err := diff.Apply(&subj); err != nil {
		return errors.Wrap(err, "applying modification")
	}
	subj.UpdatedAt = now
	_, err := svc.usrRepo.UpdateUser(ctx, subj, exec)
	return errors.Wrap(err, "updating subject")
}

func (svc *Service) notifySubject(subj user.User, mod Modification) {
	tmpl, subject := acceptedTemplate, "Your profile change was accepted"
	if mod.State == Rejected {
		tmpl, subject = rejectedTemplate, "Your profile change was rejected"
	}

	changes := make([]changeLine, 0, len(mod.Content))
	for _, fc := range mod.Content {
		changes = append(changes, changeLine{Label: LabelOf(fc.Field), Old: fc.Old, New: fc.New})
	}

	// an accepted change is addressed with the new name and address
	firstName, address := subj.FirstName, subj.Email
	if mod.State == Accepted {
		if change, ok := mod.Content.Get(FirstName.Name); ok {
			firstName = change.New
		}
		if change, ok := mod.Content.Get(Email.Name); ok {
			address = change.New
		}
	}

	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: subj.FullName(), Address: address}},
		Subject:      subject,
		TemplateName: tmpl,
		TemplateData: map[string]interface{}{
			"first_name": firstName,
			"changes":    changes,
			"note":       mod.Note,
		},
	}

	for _, derr := range svc.mailSvc.SendMessages(msg) {
		svc.logger.Error(fmt.Sprintf("notifying subject of modification %s", mod.ID), derr, subj)
	}
}

type nopObserver struct{}

func (nopObserver) ModificationProposed(State) {}
func (nopObserver) ModificationDecided(State)  {}
