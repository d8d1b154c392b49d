package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/nfnt/resize"
	"github.com/redis/go-redis/v9"

	"realty/site/internal/config"
	"realty/site/internal/email"
	"realty/site/internal/models"
	"realty/site/internal/services"
	"realty/site/internal/storage"
	"realty/site/internal/utils"
)

// Task types.
const (
	TypeInquiryNotify = "inquiry:notify"
	TypeInquiryAck    = "inquiry:ack"
	TypeImageProcess  = "image:process"
)

// Queues.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueImages   = "images"
)

// --- Task Client (Enqueuing tasks) ---

func redisOpt(rdb *redis.Client) asynq.RedisClientOpt {
	opts := rdb.Options()
	return asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}
}

func NewClient(rdb *redis.Client) *asynq.Client {
	return asynq.NewClient(redisOpt(rdb))
}

// InquiryEmailPayload carries a snapshot of the inquiry so the email does not
// depend on the inquiry still existing when the task runs.
type InquiryEmailPayload struct {
	InquiryID string     `json:"inquiry_id"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone"`
	Country   string     `json:"country"`
	Property  string     `json:"property"`
	Message   string     `json:"message"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	Locale    string     `json:"locale,omitempty"`
}

func payloadFromInquiry(inq *models.Inquiry) InquiryEmailPayload {
	return InquiryEmailPayload{
		InquiryID: inq.ID.String(),
		FirstName: inq.FirstName,
		LastName:  inq.LastName,
		Email:     inq.Email,
		Phone:     inq.Phone,
		Country:   inq.Country,
		Property:  inq.Property,
		Message:   inq.Message,
		CreatedAt: inq.CreatedAt,
	}
}

// NewInquiryNotifyTask builds the staff notification task for a new inquiry.
func NewInquiryNotifyTask(inq *models.Inquiry, maxRetry int) (*asynq.Task, error) {
	payload, err := json.Marshal(payloadFromInquiry(inq))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal inquiry email payload: %w", err)
	}
	return asynq.NewTask(TypeInquiryNotify, payload, asynq.Queue(QueueCritical), asynq.MaxRetry(maxRetry)), nil
}

// NewInquiryAckTask builds the acknowledgement email task for the person who inquired.
func NewInquiryAckTask(inq *models.Inquiry, maxRetry int) (*asynq.Task, error) {
	payload, err := json.Marshal(payloadFromInquiry(inq))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal inquiry email payload: %w", err)
	}
	return asynq.NewTask(TypeInquiryAck, payload, asynq.Queue(QueueDefault), asynq.MaxRetry(maxRetry)), nil
}

// ImageTaskPayload names an uploaded gallery image.
type ImageTaskPayload struct {
	S3Key     string `json:"s3_key"`
	ProjectID string `json:"project_id"`
}

// NewImageProcessTask builds the normalisation task for an uploaded image.
func NewImageProcessTask(projectID utils.SixID, key string) (*asynq.Task, error) {
	payload, err := json.Marshal(ImageTaskPayload{S3Key: key, ProjectID: projectID.String()})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal image task payload: %w", err)
	}
	return asynq.NewTask(TypeImageProcess, payload, asynq.Queue(QueueImages)), nil
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks.
// It holds dependencies needed by task handlers.
type TaskProcessor struct {
	cfg                  *config.Config
	emailSender          email.Sender
	storageService       storage.IS3Storage
	projectService       services.IProjectService
	emailTemplateService services.IEmailTemplateService
	now                  func() time.Time
}

func NewTaskProcessor(
	cfg *config.Config,
	emailSender email.Sender,
	storageService storage.IS3Storage,
	projectService services.IProjectService,
	emailTemplateService services.IEmailTemplateService,
) *TaskProcessor {
	return &TaskProcessor{
		cfg:                  cfg,
		emailSender:          emailSender,
		storageService:       storageService,
		projectService:       projectService,
		emailTemplateService: emailTemplateService,
		now:                  time.Now,
	}
}

// SetupServer configures an Asynq server and its mux for the given worker roles.
// It returns nil when neither role is enabled. The caller runs the server.
func SetupServer(rdb *redis.Client, processor *TaskProcessor, isImageWorker bool, isBgWorker bool) (*asynq.Server, *asynq.ServeMux) {
	if !isBgWorker && !isImageWorker {
		log.Println("Running in API mode, no task server started.")
		return nil, nil
	}

	queues := map[string]int{}
	mux := asynq.NewServeMux()

	if isBgWorker {
		queues[QueueCritical] = 6
		queues[QueueDefault] = 3
		mux.HandleFunc(TypeInquiryNotify, processor.HandleInquiryNotifyTask)
		mux.HandleFunc(TypeInquiryAck, processor.HandleInquiryAckTask)
		log.Println("Registered inquiry email task handlers.")
	}

	if isImageWorker {
		queues[QueueImages] = 5
		mux.HandleFunc(TypeImageProcess, processor.HandleImageProcessTask)
		log.Println("Registered image processing task handlers.")
	}

	srv := asynq.NewServer(
		redisOpt(rdb),
		asynq.Config{
			Queues: queues,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("[Asynq Error] Task Type: %s, Payload: %s, Error: %v", task.Type(), string(task.Payload()), err)
			}),
		},
	)
	return srv, mux
}

// --- Task Handlers ---

// HandleInquiryNotifyTask emails staff about a new inquiry.
// A missing email configuration is not an error: the inquiry is already stored.
func (p *TaskProcessor) HandleInquiryNotifyTask(ctx context.Context, t *asynq.Task) error {
	var payload InquiryEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal inquiry email payload: %v: %w", err, asynq.SkipRetry)
	}
	if !p.cfg.EmailConfigured() {
		log.Printf("Warning: email not configured, skipping notification for inquiry %s", payload.InquiryID)
		return nil
	}
	return p.sendTemplated(ctx, models.TemplateInquiryReceived, p.cfg.InquiryRecipients, payload)
}

// HandleInquiryAckTask emails the person who inquired.
func (p *TaskProcessor) HandleInquiryAckTask(ctx context.Context, t *asynq.Task) error {
	var payload InquiryEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal inquiry email payload: %v: %w", err, asynq.SkipRetry)
	}
	if !p.cfg.EmailConfigured() {
		log.Printf("Warning: email not configured, skipping acknowledgement for inquiry %s", payload.InquiryID)
		return nil
	}
	if payload.Email == "" {
		return fmt.Errorf("inquiry %s has no email address: %w", payload.InquiryID, asynq.SkipRetry)
	}
	return p.sendTemplated(ctx, models.TemplateInquiryAck, []string{payload.Email}, payload)
}

func (p *TaskProcessor) sendTemplated(ctx context.Context, templateID string, to []string, payload InquiryEmailPayload) error {
	locale := payload.Locale
	if locale == "" {
		locale = models.DefaultLocale
	}

	tmpl, err := p.emailTemplateService.GetTemplate(ctx, templateID, locale)
	if err != nil {
		log.Printf("Error getting email template %s/%s: %v", templateID, locale, err)
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("email template not found: %w", asynq.SkipRetry)
		}
		return err
	}

	subject, body, err := services.RenderTemplate(tmpl, payload)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	fromAddress := p.cfg.SmtpFromAddress
	if fromAddress == "" {
		fromAddress = "noreply@example.com"
		log.Printf("Warning: SmtpFromAddress not configured, using fallback %s", fromAddress)
	}
	rawMessage := email.BuildMessage(fromAddress, to, subject, body, p.now())

	if err := p.emailSender.Send(ctx, to, subject, rawMessage); err != nil {
		log.Printf("Email %s for inquiry %s failed (will retry): %v", templateID, payload.InquiryID, err)
		return fmt.Errorf("%w: %v", models.ErrEmailDelivery, err)
	}

	log.Printf("Email task processed successfully: To=%v, Template=%s, Inquiry=%s", to, templateID, payload.InquiryID)
	return nil
}

// HandleImageProcessTask shrinks an uploaded gallery image to the configured bounds
// and attaches it to its project.
func (p *TaskProcessor) HandleImageProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload ImageTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal image task payload: %v: %w", err, asynq.SkipRetry)
	}

	projectID, err := utils.ParseSixID(payload.ProjectID)
	if err != nil || projectID.IsZero() {
		log.Printf("Invalid ProjectID in image task payload: %s", payload.ProjectID)
		return fmt.Errorf("invalid project ID in payload: %w", asynq.SkipRetry)
	}

	log.Printf("Processing image task: S3Key=%s, ProjectID=%s", payload.S3Key, payload.ProjectID)

	// 1. Download image
	imgData, _, err := p.storageService.GetObject(ctx, payload.S3Key)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			log.Printf("S3 object %s not found, likely upload failed or key incorrect.", payload.S3Key)
			return fmt.Errorf("s3 object not found: %w", asynq.SkipRetry)
		}
		return err
	}

	maxSizeBytes := int64(p.cfg.ImageMaxSizeMB) * 1024 * 1024
	if int64(len(imgData)) > maxSizeBytes {
		log.Printf("Image %s exceeds max size (%d > %d bytes). Deleting.", payload.S3Key, len(imgData), maxSizeBytes)
		p.discard(ctx, payload.S3Key)
		return fmt.Errorf("image exceeds max size: %w", asynq.SkipRetry)
	}

	img, format, err := image.Decode(bytes.NewReader(imgData))
	if err != nil {
		log.Printf("Error decoding image for key %s: %v", payload.S3Key, err)
		p.discard(ctx, payload.S3Key)
		return fmt.Errorf("unsupported image format or corrupt image: %w", asynq.SkipRetry)
	}
	log.Printf("Decoded image %s, format: %s, size: %dx%d", payload.S3Key, format, img.Bounds().Dx(), img.Bounds().Dy())

	// 2. Resize if needed
	maxDim := uint(p.cfg.ImageMaxDimension)
	if uint(img.Bounds().Dx()) > maxDim || uint(img.Bounds().Dy()) > maxDim {
		resized := resize.Thumbnail(maxDim, maxDim, img, resize.Lanczos3)
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
			return fmt.Errorf("failed to re-encode resized image: %w", err)
		}
		if int64(buf.Len()) > maxSizeBytes {
			log.Printf("Resized image %s still exceeds max size (%d > %d bytes).", payload.S3Key, buf.Len(), maxSizeBytes)
			p.discard(ctx, payload.S3Key)
			return fmt.Errorf("resized image still exceeds max size: %w", asynq.SkipRetry)
		}
		log.Printf("Resized image %s to %dx%d", payload.S3Key, resized.Bounds().Dx(), resized.Bounds().Dy())

		// 3. Overwrite the original
		if err := p.storageService.PutObject(ctx, payload.S3Key, buf.Bytes(), "image/jpeg"); err != nil {
			return err
		}
	}

	// 4. Attach to project
	if err := p.projectService.AddImage(ctx, projectID, payload.S3Key); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			log.Printf("Project %s was deleted before image %s was processed.", payload.ProjectID, payload.S3Key)
			p.discard(ctx, payload.S3Key)
			return fmt.Errorf("project not found: %w", asynq.SkipRetry)
		}
		return fmt.Errorf("failed to update project with processed image: %w", err)
	}

	log.Printf("Image task processed successfully: Key=%s, ProjectID=%s", payload.S3Key, payload.ProjectID)
	return nil
}

// discard deletes an object that will never be attached to a project.
func (p *TaskProcessor) discard(ctx context.Context, key string) {
	if err := p.storageService.DeleteObject(ctx, key); err != nil {
		log.Printf("Warning: failed to delete rejected image %s: %v", key, err)
	}
}
