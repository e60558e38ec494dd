// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package publish

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenk/backoff"
	"github.com/package-url/packageurl-go"
	"zombiezen.com/go/sqlite"

	"github.com/bureau-foundation/registry/lib/apperr"
	"github.com/bureau-foundation/registry/lib/archive"
	"github.com/bureau-foundation/registry/lib/blobstore"
	"github.com/bureau-foundation/registry/lib/clock"
	"github.com/bureau-foundation/registry/lib/cratename"
	"github.com/bureau-foundation/registry/lib/jobqueue"
	"github.com/bureau-foundation/registry/lib/metadata"
	"github.com/bureau-foundation/registry/lib/metrics"
	"github.com/bureau-foundation/registry/lib/ratelimit"
	"github.com/bureau-foundation/registry/lib/rights"
	"github.com/bureau-foundation/registry/lib/store"
	"github.com/bureau-foundation/registry/lib/wire"
)

const missingRightsMessage = "this crate exists but you don't seem to be an owner. " +
	"If you believe this is a mistake, perhaps you need to accept an invitation to be an owner before publishing."

// DefaultReadmeFile is assumed when a request carries readme text but
// no file name.
const DefaultReadmeFile = "README.md"

// Limits are the registry-wide publish ceilings.
type Limits struct {
	// MaxUploadSize bounds the compressed archive. A crate's own
	// max_upload_size replaces it when set.
	MaxUploadSize int64

	// MaxUnpackSize bounds the decompressed archive. The effective
	// limit is never below the effective upload limit.
	MaxUnpackSize int64

	// NewVersionDailyLimit caps versions per crate in any 24 hour
	// window. Zero disables the cap.
	NewVersionDailyLimit int
}

// Config configures a Service.
type Config struct {
	Store     *store.Store
	Limiter   *ratelimit.Limiter
	Directory rights.TeamDirectory
	Blobs     blobstore.Store
	Limits    Limits

	// UploadBackOff returns the retry policy for the post-commit
	// archive upload. Defaults to exponential backoff giving up after
	// 30 seconds.
	UploadBackOff func() backoff.BackOff

	Metrics metrics.Metrics
	Clock   clock.Clock
	Logger  *slog.Logger
}

// Service publishes crates.
type Service struct {
	store         *store.Store
	limiter       *ratelimit.Limiter
	directory     rights.TeamDirectory
	blobs         blobstore.Store
	limits        Limits
	uploadBackOff func() backoff.BackOff
	metrics       metrics.Metrics
	clock         clock.Clock
	logger        *slog.Logger
}

// New validates config and returns a Service.
func New(config Config) (*Service, error) {
	switch {
	case config.Store == nil:
		return nil, errors.New("publish: Store is required")
	case config.Limiter == nil:
		return nil, errors.New("publish: Limiter is required")
	case config.Directory == nil:
		return nil, errors.New("publish: Directory is required")
	case config.Blobs == nil:
		return nil, errors.New("publish: Blobs is required")
	case config.Clock == nil:
		return nil, errors.New("publish: Clock is required")
	case config.Logger == nil:
		return nil, errors.New("publish: Logger is required")
	case config.Limits.MaxUploadSize <= 0:
		return nil, errors.New("publish: Limits.MaxUploadSize must be positive")
	}
	service := &Service{
		store:         config.Store,
		limiter:       config.Limiter,
		directory:     config.Directory,
		blobs:         config.Blobs,
		limits:        config.Limits,
		uploadBackOff: config.UploadBackOff,
		metrics:       config.Metrics,
		clock:         config.Clock,
		logger:        config.Logger,
	}
	if service.uploadBackOff == nil {
		service.uploadBackOff = defaultUploadBackOff
	}
	if service.metrics == nil {
		service.metrics = metrics.Noop{}
	}
	return service, nil
}

func defaultUploadBackOff() backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = 30 * time.Second
	return policy
}

// Request is one publish call.
type Request struct {
	Actor rights.Actor

	// TokenID is the API token the request authenticated with, or
	// zero.
	TokenID int64

	// Body is the length-prefixed metadata and archive.
	Body []byte
}

// Result describes a successful publish.
type Result struct {
	Crate    CrateSummary `json:"crate"`
	Warnings Warnings     `json:"warnings"`
}

// CrateSummary is the crate as it stands after the publish.
type CrateSummary struct {
	ID            int64  `json:"-"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	Homepage      string `json:"homepage,omitempty"`
	Documentation string `json:"documentation,omitempty"`
	Repository    string `json:"repository,omitempty"`

	// Version is the version this request published.
	Version string `json:"version"`

	MaxVersion       string `json:"max_version"`
	MaxStableVersion string `json:"max_stable_version,omitempty"`
	NewestVersion    string `json:"newest_version"`

	// PackageURL identifies the published version, as
	// pkg:cargo/name@version.
	PackageURL string `json:"purl"`

	// Created reports whether this publish created the crate.
	Created bool `json:"-"`
}

// Warnings are non-fatal observations about a publish.
type Warnings struct {
	InvalidCategories []string `json:"invalid_categories"`
	InvalidBadges     []string `json:"invalid_badges"`
	Other             []string `json:"other"`
}

// Publish runs the full pipeline for request.
func (s *Service) Publish(ctx context.Context, request Request) (*Result, error) {
	started := s.clock.Now()
	result, err := s.publish(ctx, request)
	s.metrics.ObservePublish(outcome(err), s.clock.Now().Sub(started))
	return result, err
}

func (s *Service) publish(ctx context.Context, request Request) (*Result, error) {
	metadataBytes, archiveBytes, err := wire.Split(request.Body)
	if err != nil {
		return nil, err
	}
	meta, err := wire.DecodeMetadata(metadataBytes)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With("crate", meta.Name, "version", meta.Vers, "user", request.Actor.Login)

	// This lookup picks the rate limit bucket and the upload ceiling and
	// turns away non-owners before any archive work. Ownership is
	// decided again inside the transaction.
	existing, err := s.lookupCrate(ctx, meta.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := s.checkOwnership(ctx, request.Actor, existing); err != nil {
			return nil, err
		}
	}

	action := ratelimit.PublishNew
	if existing != nil {
		action = ratelimit.PublishUpdate
	}
	if err := s.limiter.Check(ctx, request.Actor.UserID, action); err != nil {
		if apperr.Is(err, apperr.RateLimited) {
			s.metrics.IncRateLimited(string(action))
			logger.Info("publish rate limited", "action", action)
		}
		return nil, err
	}

	maxUpload := s.limits.MaxUploadSize
	if existing != nil && existing.MaxUploadSize > 0 {
		maxUpload = existing.MaxUploadSize
	}
	maxUnpack := max(maxUpload, s.limits.MaxUnpackSize)
	if int64(len(archiveBytes)) > maxUpload {
		return nil, apperr.TooLargef(maxUpload, "max upload size is: %d", maxUpload)
	}

	info, err := archive.Process(archiveBytes, meta.Name+"-"+meta.Vers, archive.Limits{
		MaxCompressed:   maxUpload,
		MaxDecompressed: maxUnpack,
	})
	if err != nil {
		return nil, archiveError(err)
	}
	validated, err := metadata.Validate(info.Manifest.Package)
	if err != nil {
		return nil, err
	}

	checksum := sha256.Sum256(archiveBytes)
	draft := &draft{
		actor:     request.Actor,
		tokenID:   request.TokenID,
		meta:      meta,
		validated: validated,
		pkg:       info.Manifest.Package,
		pathInVCS: info.PathInVCS,
		checksum:  hex.EncodeToString(checksum[:]),
		size:      int64(len(archiveBytes)),
	}

	var result *Result
	err = s.store.Transact(ctx, func(conn *sqlite.Conn) error {
		var err error
		result, err = s.persist(ctx, conn, draft)
		return err
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.Internal {
			logger.Error("publish transaction failed", "error", err)
		}
		return nil, internalIfUnclassified(err, "publishing crate")
	}

	if err := s.uploadArchive(ctx, result.Crate.Name, meta.Vers, archiveBytes); err != nil {
		logger.Error("archive upload failed after commit", "error", err)
		return nil, apperr.Internalf(err, "failed to upload crate")
	}

	logger.Info("crate published",
		"created", result.Crate.Created,
		"checksum", draft.checksum,
		"invalid_categories", len(result.Warnings.InvalidCategories),
	)
	return result, nil
}

func (s *Service) lookupCrate(ctx context.Context, name string) (*store.Crate, error) {
	var crate *store.Crate
	err := s.store.Read(ctx, func(conn *sqlite.Conn) error {
		var err error
		crate, err = store.CrateByName(conn, name)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internalf(err, "looking up crate")
	}
	return crate, nil
}

// checkOwnership rejects actors below Publish on an existing crate.
func (s *Service) checkOwnership(ctx context.Context, actor rights.Actor, crate *store.Crate) error {
	var owners []rights.Owner
	err := s.store.Read(ctx, func(conn *sqlite.Conn) error {
		var err error
		owners, err = store.Owners(conn, crate.ID)
		return err
	})
	if err != nil {
		return apperr.Internalf(err, "loading owners")
	}
	level, err := rights.Resolve(ctx, actor, owners, s.directory)
	if err != nil {
		return err
	}
	if level < rights.Publish {
		return apperr.Forbiddenf("%s", missingRightsMessage)
	}
	return nil
}

// draft is everything validated before the transaction starts.
type draft struct {
	actor     rights.Actor
	tokenID   int64
	meta      *wire.PublishMetadata
	validated *metadata.Validated
	pkg       *archive.Package
	pathInVCS string
	checksum  string
	size      int64
}

func (s *Service) persist(ctx context.Context, conn *sqlite.Conn, d *draft) (*Result, error) {
	now := s.clock.Now()
	name := d.meta.Name

	reserved, err := store.IsReservedName(conn, name)
	if err != nil {
		return nil, err
	}
	if reserved {
		return nil, apperr.Inputf("cannot upload a crate with a reserved name")
	}

	readmeText := ""
	if d.meta.Readme != nil {
		readmeText = *d.meta.Readme
	}
	crate, created, err := store.CreateOrUpdateCrate(conn, store.NewCrate{
		Name:          name,
		Description:   d.validated.Description,
		Homepage:      d.validated.Homepage,
		Documentation: d.validated.Documentation,
		Repository:    d.validated.Repository,
		Readme:        readmeText,
	}, d.actor.UserID, now)
	if err != nil {
		return nil, err
	}

	owners, err := store.Owners(conn, crate.ID)
	if err != nil {
		return nil, err
	}
	level, err := rights.Resolve(ctx, d.actor, owners, s.directory)
	if err != nil {
		return nil, err
	}
	if level < rights.Publish {
		return nil, apperr.Forbiddenf("%s", missingRightsMessage)
	}

	if crate.Name != name {
		return nil, apperr.Inputf("crate was previously named `%s`", crate.Name)
	}

	exists, err := store.VersionExists(conn, crate.ID, d.meta.Vers)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.Inputf("crate version `%s` is already uploaded", d.meta.Vers)
	}

	if limit := s.limits.NewVersionDailyLimit; limit > 0 {
		publishedToday, err := store.CountVersionsSince(conn, crate.ID, now.Add(-24*time.Hour))
		if err != nil {
			return nil, err
		}
		if publishedToday >= limit {
			return nil, apperr.Inputf("You have published too many versions of this crate in the last 24 hours")
		}
	}

	version, err := store.InsertVersion(conn, store.NewVersion{
		CrateID:     crate.ID,
		Num:         d.meta.Vers,
		Checksum:    d.checksum,
		License:     d.validated.License,
		Features:    d.meta.Features,
		CrateSize:   d.size,
		Links:       d.pkg.Links,
		RustVersion: d.pkg.RustVersion,
		PublishedBy: d.actor.UserID,
	}, now)
	if err != nil {
		return nil, err
	}
	if err := store.InsertVersionOwnerAction(conn, version.ID, d.actor.UserID, d.tokenID, store.ActionPublish, now); err != nil {
		return nil, err
	}

	edges, err := linkDependencies(conn, d.meta.Deps)
	if err != nil {
		return nil, err
	}
	if err := store.InsertDependencies(conn, version.ID, edges); err != nil {
		return nil, err
	}

	if err := store.ReplaceKeywords(conn, crate.ID, d.validated.Keywords); err != nil {
		return nil, err
	}
	invalidCategories, err := store.ReplaceCategories(conn, crate.ID, d.validated.Categories)
	if err != nil {
		return nil, err
	}

	versions, err := store.Versions(conn, crate.ID)
	if err != nil {
		return nil, err
	}
	top := store.ComputeTopVersions(versions)

	if readmeText != "" {
		readmeFile := DefaultReadmeFile
		if d.meta.ReadmeFile != nil && *d.meta.ReadmeFile != "" {
			readmeFile = *d.meta.ReadmeFile
		}
		job := ReadmeJob{
			VersionID:  version.ID,
			Crate:      crate.Name,
			Version:    version.Num,
			Text:       readmeText,
			File:       readmeFile,
			Repository: d.validated.Repository,
			PathInVCS:  d.pathInVCS,
		}
		if _, err := jobqueue.Enqueue(conn, jobqueue.RenderReadme, job, jobqueue.PriorityRenderReadme, now); err != nil {
			return nil, err
		}
	}
	if err := EnqueueIndexSync(conn, crate.Name, now); err != nil {
		return nil, err
	}

	return &Result{
		Crate: CrateSummary{
			ID:               crate.ID,
			Name:             crate.Name,
			Description:      crate.Description,
			Homepage:         crate.Homepage,
			Documentation:    crate.Documentation,
			Repository:       crate.Repository,
			Version:          version.Num,
			MaxVersion:       top.Highest,
			MaxStableVersion: top.HighestStable,
			NewestVersion:    top.Newest,
			PackageURL:       packageURL(crate.Name, version.Num),
			Created:          created,
		},
		Warnings: Warnings{
			InvalidCategories: nonNil(invalidCategories),
			InvalidBadges:     []string{},
			Other:             []string{},
		},
	}, nil
}

// EnqueueIndexSync schedules both index sync jobs for crateName. A
// sync already pending for the crate absorbs the new request, since
// the job reads the crate's full current state when it runs.
func EnqueueIndexSync(conn *sqlite.Conn, crateName string, now time.Time) error {
	job := SyncJob{Crate: crateName}
	for _, jobType := range []jobqueue.Type{jobqueue.SyncToGitIndex, jobqueue.SyncToSparseIndex} {
		if _, err := jobqueue.EnqueueUnique(conn, jobType, job, jobqueue.PrioritySyncToIndex, now); err != nil {
			return err
		}
	}
	return nil
}

// uploadArchive stores the raw archive. The key and bytes are fixed
// for a version, so retries are safe.
func (s *Service) uploadArchive(ctx context.Context, name, version string, data []byte) error {
	key := cratename.ArchiveKey(name, version)
	meta := blobstore.Metadata{ContentType: blobstore.ContentTypeCrate, CacheControl: blobstore.CacheImmutable}
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := s.blobs.Put(ctx, key, data, meta)
		if err != nil && ctx.Err() == nil {
			s.logger.Warn("archive upload attempt failed", "crate", name, "version", version, "attempt", attempt, "error", err)
		}
		return err
	}, backoff.WithContext(s.uploadBackOff(), ctx))
}

func packageURL(name, version string) string {
	return packageurl.NewPackageURL(packageurl.TypeCargo, "", name, version, nil, "").ToString()
}

// archiveError converts an archive rejection to the client taxonomy.
// Exceeding either size limit is TooLarge; everything else is Input.
func archiveError(err error) error {
	var archiveErr *archive.Error
	if !errors.As(err, &archiveErr) {
		return apperr.Internalf(err, "processing archive")
	}
	if archiveErr.Kind == archive.TooLarge || errors.Is(archiveErr, archive.ErrUnpackLimit) {
		return &apperr.Error{Kind: apperr.TooLarge, Message: archiveErr.Error(), Limit: archiveErr.Limit, Err: archiveErr}
	}
	return &apperr.Error{Kind: apperr.Input, Message: archiveErr.Error(), Err: archiveErr}
}

// internalIfUnclassified leaves classified errors alone and wraps
// anything else (constraint violations, I/O) as Internal.
func internalIfUnclassified(err error, operation string) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.Internalf(err, "%s", operation)
}

func outcome(err error) string {
	if err == nil {
		return metrics.OutcomeOK
	}
	switch apperr.KindOf(err) {
	case apperr.Input:
		return metrics.OutcomeInput
	case apperr.Forbidden:
		return metrics.OutcomeForbidden
	case apperr.Unverified:
		return metrics.OutcomeUnverified
	case apperr.RateLimited:
		return metrics.OutcomeRateLimited
	case apperr.TooLarge:
		return metrics.OutcomeTooLarge
	default:
		return metrics.OutcomeInternal
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// String renders a summary for logs and the CLI.
func (r *Result) String() string {
	return fmt.Sprintf("%s@%s (%s)", r.Crate.Name, r.Crate.Version, r.Crate.PackageURL)
}
