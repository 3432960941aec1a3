package actions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"impact-story-backend/pkg/database"
	"impact-story-backend/pkg/models"
	"impact-story-backend/pkg/utils"
)

// Photo is an uploaded image. Size is the declared size; the body is not read
// before validation.
type Photo struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type AddStoryUpdateInput struct {
	BeneficiaryID string
	Date          string
	Notes         string
	// Metrics holds raw form values keyed by metric name.
	Metrics map[string]string
	Photo   *Photo
}

// PhotoProblem returns a user-facing message when an upload has a disallowed
// type or is too large, and "" when it is acceptable.
func PhotoProblem(p *Photo) string {
	if !lo.Contains(models.AllowedPhotoTypes, p.ContentType) {
		return fmt.Sprintf("File type %s is not allowed. Please use: %s",
			p.ContentType, strings.Join(models.AllowedPhotoTypes, ", "))
	}
	if p.Size > models.MaxPhotoSize {
		return "File size exceeds " + utils.FormatFileSize(models.MaxPhotoSize)
	}
	return ""
}

// ParseMetrics converts raw form values into metric values: booleans and numbers
// are typed, everything else stays a string. Blank keys and values are dropped.
func ParseMetrics(raw map[string]string) models.Metrics {
	metrics := models.Metrics{}
	for k, v := range raw {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		switch v {
		case "true":
			metrics[k] = true
		case "false":
			metrics[k] = false
		default:
			if f, err := strconv.ParseFloat(v, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
				metrics[k] = f
			} else {
				metrics[k] = v
			}
		}
	}
	return metrics
}

// AddStoryUpdate records a dated story about a beneficiary, uploading its photo first.
func (s *Service) AddStoryUpdate(ctx context.Context, caller models.Caller, in AddStoryUpdateInput) (res Result) {
	log, done := s.begin(ctx, "add_story_update")
	defer func() { done(&res) }()

	client, ok := s.backend.Client()
	if !ok {
		return notConfigured()
	}
	if caller.Anonymous() {
		return notAuthenticated()
	}

	beneficiaryID := strings.TrimSpace(in.BeneficiaryID)
	date := strings.TrimSpace(in.Date)
	notes := strings.TrimSpace(in.Notes)
	if beneficiaryID == "" || date == "" || notes == "" {
		return invalid("Beneficiary, date, and notes are required")
	}
	if _, err := uuid.Parse(beneficiaryID); err != nil {
		return invalid("Beneficiary not found")
	}
	if _, err := time.Parse(utils.DateLayoutISO, date); err != nil {
		return invalid("Date must be a valid date (YYYY-MM-DD)")
	}
	if in.Photo != nil {
		if msg := PhotoProblem(in.Photo); msg != "" {
			return invalid(msg)
		}
	}

	store := client.Store(caller)
	beneficiary, err := store.GetBeneficiary(ctx, beneficiaryID)
	if errors.Is(err, database.ErrNotFound) {
		return invalid("Beneficiary not found")
	}
	if err != nil {
		log.WithError(err).Error("Failed to load beneficiary")
		return fail(FailureBackend, "Failed to add story update. Please try again.")
	}

	story := &models.StoryUpdate{
		BeneficiaryID: beneficiaryID,
		Date:          date,
		Notes:         notes,
		Metrics:       ParseMetrics(in.Metrics),
		CreatedBy:     caller.UserID,
	}

	var objectPath string
	if in.Photo != nil {
		objectPath = utils.ObjectName(beneficiary.OrganizationID+"/"+beneficiaryID, in.Photo.FileName, s.newID())
		url, err := client.Photos().Upload(ctx, caller, objectPath, in.Photo.ContentType, in.Photo.Body)
		if err != nil {
			log.WithError(err).Error("Failed to upload photo")
			return fail(FailureBackend, "Failed to upload photo. Please try again.")
		}
		story.PhotoURL = &url
	}

	if err := store.CreateStoryUpdate(ctx, story); err != nil {
		log.WithError(err).Error("Failed to insert story update")
		if objectPath != "" {
			// 插入失败时删除已上传的照片
			if derr := client.Photos().Delete(ctx, caller, objectPath); derr != nil {
				log.WithError(derr).WithField("object", objectPath).Warn("Failed to remove orphaned photo")
			}
		}
		return fail(FailureBackend, "Failed to add story update. Please try again.")
	}

	return Result{
		Revalidate: []string{models.RouteStories, models.RouteDashboard},
		Data:       map[string]string{"id": story.ID},
	}
}
