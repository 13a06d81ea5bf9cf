package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sjperalta/pharmavault-api/internal/models"
	"github.com/sjperalta/pharmavault-api/internal/repository"
	"github.com/sjperalta/pharmavault-api/pkg/logger"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// SignatureService applies and verifies electronic signatures on approved documents
type SignatureService struct {
	db       *gorm.DB
	repo     repository.DocumentRepository
	audit    *AuditService
	verifier CredentialVerifier
	notifier *NotificationService
	locks    *docLocks
	timeout  time.Duration
	now      func() time.Time

	perMinute  int
	limitersMu sync.Mutex
	limiters   map[uint]*rate.Limiter
}

func NewSignatureService(db *gorm.DB, repo repository.DocumentRepository, audit *AuditService, verifier CredentialVerifier, notifier *NotificationService, locks *docLocks, timeout time.Duration, attemptsPerMinute int) *SignatureService {
	if attemptsPerMinute < 1 {
		attemptsPerMinute = 1
	}
	return &SignatureService{
		db:        db,
		repo:      repo,
		audit:     audit,
		verifier:  verifier,
		notifier:  notifier,
		locks:     locks,
		timeout:   timeout,
		now:       time.Now,
		perMinute: attemptsPerMinute,
		limiters:  make(map[uint]*rate.Limiter),
	}
}

// SignatureHash binds a signature to the document id, signer, reason, time and version
func SignatureHash(documentID string, signerID uint, reason string, signedAt time.Time, version int) string {
	payload := strings.Join([]string{
		documentID,
		strconv.FormatUint(uint64(signerID), 10),
		reason,
		signedAt.UTC().Format(time.RFC3339Nano),
		strconv.Itoa(version),
	}, "|")
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

func (s *SignatureService) limiter(userID uint) *rate.Limiter {
	s.limitersMu.Lock()
	defer s.limitersMu.Unlock()
	l, ok := s.limiters[userID]
	if !ok {
		l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.perMinute)), s.perMinute)
		s.limiters[userID] = l
	}
	return l
}

// Sign re-verifies the signer's password and appends a signature bound to the
// current version. Status and version are left untouched.
func (s *SignatureService) Sign(ctx context.Context, documentID string, actor models.Principal, reason, password string) (*models.Document, *models.Signature, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, nil, newError(ErrInvalidInput, "a signature reason is required")
	}
	if password == "" {
		return nil, nil, newError(ErrInvalidInput, "password is required to sign")
	}

	current, err := s.repo.FindByID(ctx, documentID)
	if err != nil {
		return nil, nil, translate(err, "document")
	}
	if !current.MaySign() {
		return nil, nil, stateError(ErrInvalidState, NextActionFor(current), "only approved documents can be signed (document is %s)", current.Status)
	}

	if !s.limiter(actor.UserID).Allow() {
		logger.Warn("signature attempts throttled", slog.Uint64("user_id", uint64(actor.UserID)), slog.String("document_id", documentID))
		s.audit.recordOrLog(ctx, actor, AuditEntry{
			Action:       models.AuditActionRateLimited,
			ResourceType: models.ResourceDocument,
			ResourceID:   documentID,
			Details:      map[string]any{"operation": "sign", "reason": reason},
		})
		return nil, nil, newError(ErrRateLimited, "too many signature attempts, try again later")
	}

	_, err = withTimeout(ctx, s.timeout, "identity provider", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.verifier.VerifyCredential(ctx, actor.UserID, password)
	})
	if err != nil {
		if errors.Is(err, ErrAuthenticationFailed) {
			s.audit.recordOrLog(ctx, actor, AuditEntry{
				Action:       models.AuditActionAuthenticationFailed,
				ResourceType: models.ResourceDocument,
				ResourceID:   documentID,
				Details:      map[string]any{"operation": "sign", "reason": reason},
			})
			return nil, nil, newError(ErrAuthenticationFailed, "credential re-verification failed")
		}
		return nil, nil, err
	}

	unlock := s.locks.Lock(documentID)
	defer unlock()

	var (
		doc *models.Document
		sig models.Signature
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := s.repo.WithTx(tx).FindByIDForUpdate(ctx, documentID)
		if err != nil {
			return translate(err, "document")
		}
		if !d.MaySign() {
			return stateError(ErrInvalidState, NextActionFor(d), "only approved documents can be signed (document is %s)", d.Status)
		}

		signedAt := s.now().UTC().Truncate(time.Microsecond)
		sig = models.Signature{
			SignerID:        actor.UserID,
			SignerName:      actor.Name,
			SignerRole:      actor.Role,
			Reason:          reason,
			SignedAt:        signedAt,
			DocumentVersion: d.Version,
			SignatureHash:   SignatureHash(d.ID, actor.UserID, reason, signedAt, d.Version),
			Location:        models.SignatureLocationDigital,
		}
		d.Signatures = append(append([]models.Signature(nil), d.Signatures...), sig)

		if err := s.repo.WithTx(tx).Update(ctx, d); err != nil {
			return fmt.Errorf("failed to save signature: %w", err)
		}
		doc = d
		return s.audit.RecordTx(ctx, tx, actor, AuditEntry{
			Action:       models.AuditActionSign,
			ResourceType: models.ResourceDocument,
			ResourceID:   d.ID,
			Details: map[string]any{
				"reason":           reason,
				"document_version": d.Version,
				"signature_hash":   sig.SignatureHash,
				"signed_at":        signedAt.Format(time.RFC3339Nano),
			},
		})
	})
	if err != nil {
		return nil, nil, err
	}

	logger.Info("document signed",
		slog.String("document_id", doc.ID),
		slog.Int("version", doc.Version),
		slog.Uint64("user_id", uint64(actor.UserID)),
	)
	s.notifier.DocumentEvent(EventDocumentSigned, *doc, actor, reason)
	return doc, &sig, nil
}

// SignatureCheck is the verification result of one signature
type SignatureCheck struct {
	Index        int       `json:"index"`
	SignerID     uint      `json:"signer_id"`
	SignerName   string    `json:"signer_name"`
	SignedAt     time.Time `json:"signed_at"`
	Version      int       `json:"document_version"`
	StoredHash   string    `json:"stored_hash"`
	ComputedHash string    `json:"computed_hash"`
	Valid        bool      `json:"valid"`
}

// VerificationReport summarises the signature integrity of a document
type VerificationReport struct {
	DocumentID string           `json:"document_id"`
	Valid      bool             `json:"valid"`
	Checked    int              `json:"checked"`
	Invalid    int              `json:"invalid"`
	Signatures []SignatureCheck `json:"signatures"`
}

// Verify recomputes every signature hash of a document
func (s *SignatureService) Verify(ctx context.Context, documentID string) (*VerificationReport, error) {
	doc, err := s.repo.FindByID(ctx, documentID)
	if err != nil {
		return nil, translate(err, "document")
	}
	return verifyDocument(doc), nil
}

func verifyDocument(doc *models.Document) *VerificationReport {
	report := &VerificationReport{DocumentID: doc.ID, Valid: true, Signatures: []SignatureCheck{}}
	for i, sig := range doc.Signatures {
		computed := SignatureHash(doc.ID, sig.SignerID, sig.Reason, sig.SignedAt, sig.DocumentVersion)
		check := SignatureCheck{
			Index:        i,
			SignerID:     sig.SignerID,
			SignerName:   sig.SignerName,
			SignedAt:     sig.SignedAt,
			Version:      sig.DocumentVersion,
			StoredHash:   sig.SignatureHash,
			ComputedHash: computed,
			Valid:        computed == sig.SignatureHash,
		}
		if !check.Valid {
			report.Valid = false
			report.Invalid++
		}
		report.Checked++
		report.Signatures = append(report.Signatures, check)
	}
	return report
}

// SweepSignatures verifies every signed document and alerts admins on tampering.
// It runs as a scheduled job and never mutates documents.
func (s *SignatureService) SweepSignatures(ctx context.Context) error {
	docs, err := s.repo.FindByStatuses(ctx, models.DocumentStatusApproved, models.DocumentStatusArchived)
	if err != nil {
		return fmt.Errorf("failed to load signed documents: %w", err)
	}

	var tampered int
	for i := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(docs[i].Signatures) == 0 {
			continue
		}
		report := verifyDocument(&docs[i])
		if report.Valid {
			continue
		}
		tampered++
		logger.Error("signature integrity check failed",
			slog.String("document_id", docs[i].ID),
			slog.Int("invalid", report.Invalid),
			slog.Int("checked", report.Checked),
		)
		if s.notifier != nil {
			id := docs[i].ID
			if err := s.notifier.NotifyAdmins(ctx, &id,
				"Signature integrity alert",
				fmt.Sprintf("%d of %d signatures on %s no longer verify", report.Invalid, report.Checked, docs[i].Title),
				models.NotificationTypeTamperDetected); err != nil {
				logger.Warn("failed to alert admins", slog.String("document_id", id), slog.String("error", err.Error()))
			}
		}
	}

	logger.Info("signature sweep finished", slog.Int("documents", len(docs)), slog.Int("tampered", tampered))
	return nil
}
