package services

import (
	"fmt"
	"log"
	"net/smtp"
	"strings"
	"time"
)

type EmailService struct {
	host        string
	port        string
	user        string
	pass        string
	from        string
	frontendURL string
	devMode     bool
}

func NewEmailService(host, port, user, pass, from, frontendURL string) *EmailService {
	devMode := host == "" || user == ""
	if devMode {
		log.Println("⚠ Email service running in DEV MODE (logging to console)")
	}
	return &EmailService{
		host:        host,
		port:        port,
		user:        user,
		pass:        pass,
		from:        from,
		frontendURL: frontendURL,
		devMode:     devMode,
	}
}

func (s *EmailService) SendVerificationEmail(to, token string) error {
	verifyURL := fmt.Sprintf("%s/verify-email?token=%s", s.frontendURL, token)

	subject := "Verify your Classview account"
	body := fmt.Sprintf(`<p>Welcome to Classview!</p>
<p>Confirm your email address to finish setting up your account:</p>
<p><a href="%s">Verify email</a></p>
<p>The link expires in 24 hours.</p>`, verifyURL)

	return s.send(to, subject, body)
}

// SendSessionReminder notifies an enrolled student about an upcoming live session.
func (s *EmailService) SendSessionReminder(to, courseTitle, sessionTitle string, startsAt time.Time) error {
	subject := fmt.Sprintf("Upcoming session: %s", sessionTitle)
	body := fmt.Sprintf(`<p>Your course <b>%s</b> has a live session coming up:</p>
<p><b>%s</b> at %s</p>
<p><a href="%s">Open Classview</a> to join when it starts.</p>`,
		courseTitle, sessionTitle, startsAt.Format("Mon, Jan 2 15:04 MST"), s.frontendURL)

	return s.send(to, subject, body)
}

// SendWeeklyDigest summarizes last week's engagement for an instructor.
func (s *EmailService) SendWeeklyDigest(to string, sessionCount, answerCount int) error {
	subject := "Your Classview week in review"
	body := fmt.Sprintf(`<p>Last week across your courses:</p>
<ul><li>%d live sessions held</li><li>%d answers submitted</li></ul>
<p><a href="%s/reports">See full reports</a></p>`, sessionCount, answerCount, s.frontendURL)

	return s.send(to, subject, body)
}

func (s *EmailService) send(to, subject, htmlBody string) error {
	if s.devMode {
		log.Printf("[DEV EMAIL] To: %s | Subject: %s\n%s", to, subject, htmlBody)
		return nil
	}

	msg := strings.Join([]string{
		"From: " + s.from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=\"UTF-8\"",
		"",
		htmlBody,
	}, "\r\n")

	auth := smtp.PlainAuth("", s.user, s.pass, s.host)
	addr := s.host + ":" + s.port

	if err := smtp.SendMail(addr, auth, s.from, []string{to}, []byte(msg)); err != nil {
		log.Printf("Failed to send email to %s: %v", to, err)
		return err
	}
	return nil
}
