package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"classview-backend/internal/repository"
)

// NotificationService runs the background schedules that send session
// reminders to students and weekly digests to instructors.
type NotificationService struct {
	sessionRepo *repository.SessionRepo
	courseRepo  *repository.CourseRepo
	userRepo    *repository.UserRepo
	reportRepo  *repository.ReportRepo
	email       *EmailService
	redis       *redis.Client
	stopChan    chan struct{}
}

func NewNotificationService(
	sessionRepo *repository.SessionRepo,
	courseRepo *repository.CourseRepo,
	userRepo *repository.UserRepo,
	reportRepo *repository.ReportRepo,
	email *EmailService,
	redisClient *redis.Client,
) *NotificationService {
	return &NotificationService{
		sessionRepo: sessionRepo,
		courseRepo:  courseRepo,
		userRepo:    userRepo,
		reportRepo:  reportRepo,
		email:       email,
		redis:       redisClient,
		stopChan:    make(chan struct{}),
	}
}

// Start launches the reminder and digest loops. Call Stop to shut them down.
func (s *NotificationService) Start() {
	go s.reminderLoop()
	go s.digestLoop()
	log.Println("✓ Notification scheduler started")
}

func (s *NotificationService) Stop() {
	close(s.stopChan)
}

func (s *NotificationService) reminderLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.sendReminders(context.Background())
		}
	}
}

func (s *NotificationService) digestLoop() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			now := time.Now()
			// Monday morning, once per week
			if now.Weekday() == time.Monday && now.Hour() == 8 {
				s.sendDigests(context.Background())
			}
		}
	}
}

// sendReminders emails every opted-in enrolled student about sessions
// starting within the next 30 minutes. A Redis SETNX key per
// (session, student) pair keeps re-runs from double-sending.
func (s *NotificationService) sendReminders(ctx context.Context) {
	sessions, err := s.sessionRepo.ListUpcoming(ctx, 30)
	if err != nil {
		log.Printf("Reminder sweep failed to list sessions: %v", err)
		return
	}

	for _, session := range sessions {
		if session.ScheduledFor == nil {
			continue
		}

		course, err := s.courseRepo.GetByID(ctx, session.CourseID)
		if err != nil {
			log.Printf("Reminder sweep: failed to load course %s: %v", session.CourseID, err)
			continue
		}

		roster, err := s.courseRepo.Roster(ctx, session.CourseID)
		if err != nil {
			log.Printf("Reminder sweep: failed to load roster for %s: %v", session.CourseID, err)
			continue
		}

		for _, entry := range roster {
			settings, err := s.userRepo.GetNotificationSettings(ctx, entry.StudentID)
			if err != nil || !settings.SessionReminders {
				continue
			}

			dedupeKey := fmt.Sprintf("reminder_sent:%s:%s", session.ID, entry.StudentID)
			ok, err := s.redis.SetNX(ctx, dedupeKey, "1", 24*time.Hour).Result()
			if err != nil || !ok {
				continue
			}

			if err := s.email.SendSessionReminder(entry.Email, course.Title, session.Title, *session.ScheduledFor); err != nil {
				// Let the next sweep retry
				s.redis.Del(ctx, dedupeKey)
			}
		}
	}
}

// sendDigests emails each opted-in instructor a summary of last week's
// sessions and answers across their courses.
func (s *NotificationService) sendDigests(ctx context.Context) {
	recipients, err := s.userRepo.ListDigestRecipients(ctx)
	if err != nil {
		log.Printf("Digest sweep failed to list recipients: %v", err)
		return
	}

	weekKey := time.Now().Format("2006-01-02")
	since := time.Now().AddDate(0, 0, -7)

	for _, user := range recipients {
		dedupeKey := fmt.Sprintf("digest_sent:%s:%s", weekKey, user.ID)
		ok, err := s.redis.SetNX(ctx, dedupeKey, "1", 7*24*time.Hour).Result()
		if err != nil || !ok {
			continue
		}

		sessionCount, answerCount, err := s.reportRepo.WeeklyActivity(ctx, user.ID, since)
		if err != nil {
			log.Printf("Digest sweep: failed to aggregate activity for %s: %v", user.ID, err)
			s.redis.Del(ctx, dedupeKey)
			continue
		}

		if sessionCount == 0 {
			continue
		}

		if err := s.email.SendWeeklyDigest(user.Email, sessionCount, answerCount); err != nil {
			s.redis.Del(ctx, dedupeKey)
		}
	}
}
