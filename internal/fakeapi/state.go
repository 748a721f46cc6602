package fakeapi

import (
	"bufio"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"rfpdesk/pkg/auth"
	"rfpdesk/pkg/domain"
)

const generalSection = "General"

var (
	errNotFound      = errors.New("not found")
	errEmailTaken    = errors.New("Email already registered")
	errAlreadyFinal  = errors.New("Answer already submitted")
	errNotAssigned   = errors.New("Reviewer is not assigned to this question")
	errWrongPassword = errors.New("Old password is incorrect")
)

type account struct {
	user         domain.User
	passwordHash string
	otp          string
	otpVerified  bool
}

type question struct {
	domain.Question
	assignees []string
	updatedAt time.Time
}

type document struct {
	domain.Document
	questions []string
}

type report struct {
	domain.ReportDoc
	docID string
	body  []byte
}

// state is the whole backend, guarded by one mutex.
type state struct {
	mu        sync.Mutex
	seq       int
	accounts  map[string]*account
	users     []string
	docs      map[string]*document
	docOrder  []string
	questions map[string]*question
	versions  map[string][]domain.AnswerVersion
	reports   []*report
	notified  [][]string
}

func newState() *state {
	return &state{
		accounts:  make(map[string]*account),
		docs:      make(map[string]*document),
		questions: make(map[string]*question),
		versions:  make(map[string][]domain.AnswerVersion),
	}
}

func (s *state) nextID() string {
	s.seq++
	return strconv.Itoa(s.seq)
}

func (s *state) accountByEmail(email string) *account {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, id := range s.users {
		if acc := s.accounts[id]; strings.ToLower(acc.user.Email) == email {
			return acc
		}
	}
	return nil
}

func (s *state) createAccount(username, email, password string, role domain.UserRole) (*account, error) {
	if s.accountByEmail(email) != nil {
		return nil, errEmailTaken
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if role == "" {
		role = domain.RoleReviewer
	}
	acc := &account{
		user: domain.User{
			UserID:     s.nextID(),
			Username:   strings.TrimSpace(username),
			Email:      strings.TrimSpace(email),
			Role:       role,
			IsVerified: true,
		},
		passwordHash: hash,
	}
	s.accounts[acc.user.UserID] = acc
	s.users = append(s.users, acc.user.UserID)
	return acc, nil
}

func (s *state) deleteAccount(userID string) error {
	if _, ok := s.accounts[userID]; !ok {
		return errNotFound
	}
	delete(s.accounts, userID)
	s.users = without(s.users, userID)
	for _, q := range s.questions {
		q.assignees = without(q.assignees, userID)
	}
	return nil
}

func (s *state) listUsers() []domain.User {
	out := make([]domain.User, 0, len(s.users))
	for _, id := range s.users {
		out = append(out, s.accounts[id].user)
	}
	return out
}

func (s *state) findDocument(project, filename string) *document {
	for _, id := range s.docOrder {
		d := s.docs[id]
		if d.ProjectName == project && d.Filename == filename {
			return d
		}
	}
	return nil
}

func (s *state) addDocument(project, filename string, category domain.Category) *document {
	d := &document{Document: domain.Document{
		ID:          s.nextID(),
		Filename:    filename,
		ProjectName: project,
		Category:    category,
		UploadedAt:  time.Now().UTC(),
	}}
	s.docs[d.ID] = d
	s.docOrder = append(s.docOrder, d.ID)
	return d
}

func (s *state) deleteDocument(docID string) error {
	d, ok := s.docs[docID]
	if !ok {
		return errNotFound
	}
	for _, qid := range d.questions {
		delete(s.questions, qid)
		delete(s.versions, qid)
	}
	delete(s.docs, docID)
	s.docOrder = without(s.docOrder, docID)
	return nil
}

// extractQuestions reads one question per line ending in "?". A line starting
// with "#" opens a new section.
func (s *state) extractQuestions(d *document, text string) []string {
	section := generalSection
	var texts []string
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "#"):
			if name := strings.TrimSpace(strings.TrimLeft(line, "#")); name != "" {
				section = name
			}
		case strings.HasSuffix(line, "?"):
			q := &question{Question: domain.Question{
				ID:         s.nextID(),
				Text:       line,
				Section:    section,
				DocumentID: d.ID,
			}, updatedAt: time.Now().UTC()}
			s.questions[q.ID] = q
			d.questions = append(d.questions, q.ID)
			texts = append(texts, line)
		}
	}
	return texts
}

// sections groups a document's questions in first-seen section order.
func (s *state) sections(d *document, keep func(*question) bool) []domain.Section {
	var out []domain.Section
	index := make(map[string]int)
	for _, qid := range d.questions {
		q := s.questions[qid]
		if q == nil || !keep(q) {
			continue
		}
		i, ok := index[q.Section]
		if !ok {
			i = len(out)
			index[q.Section] = i
			out = append(out, domain.Section{Name: q.Section})
		}
		out[i].Questions = append(out[i].Questions, q.Question)
	}
	return out
}

func (s *state) assign(qid, userID string) {
	q := s.questions[qid]
	for _, id := range q.assignees {
		if id == userID {
			return
		}
	}
	q.assignees = append(q.assignees, userID)
	q.updatedAt = time.Now().UTC()
}

func (s *state) assignedTo(userID string) []*question {
	var out []*question
	for _, docID := range s.docOrder {
		for _, qid := range s.docs[docID].questions {
			q := s.questions[qid]
			for _, id := range q.assignees {
				if id == userID {
					out = append(out, q)
					break
				}
			}
		}
	}
	return out
}

func (s *state) addVersion(q *question, answer string) domain.AnswerVersion {
	v := domain.AnswerVersion{
		ID:          s.nextID(),
		QuestionID:  q.ID,
		Answer:      answer,
		GeneratedAt: time.Now().UTC(),
	}
	s.versions[q.ID] = append([]domain.AnswerVersion{v}, s.versions[q.ID]...)
	q.Answer = answer
	q.updatedAt = v.GeneratedAt
	return v
}

func (s *state) setAnswer(q *question, answer string, status domain.SubmissionStatus) error {
	if q.Status.Terminal() {
		return errAlreadyFinal
	}
	q.Answer = answer
	q.Status = status
	q.updatedAt = time.Now().UTC()
	return nil
}

func (s *state) usernames(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if acc, ok := s.accounts[id]; ok {
			out = append(out, acc.user.Username)
		}
	}
	return out
}

// buildReport renders every question of a document with its answer.
func (s *state) buildReport(d *document) *report {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", d.Filename)
	for _, sec := range s.sections(d, func(*question) bool { return true }) {
		fmt.Fprintf(&b, "## %s\n\n", sec.Name)
		for _, q := range sec.Questions {
			answer := q.Answer
			if answer == "" {
				answer = "(no answer)"
			}
			fmt.Fprintf(&b, "Q: %s\nA: %s\n\n", q.Text, answer)
		}
	}
	base := strings.TrimSuffix(d.Filename, filepath.Ext(d.Filename))
	name := fmt.Sprintf("RFP_%s_%s.txt", base, d.ID)
	r := &report{
		ReportDoc: domain.ReportDoc{
			FileName:    name,
			DownloadURL: "/download/" + name,
			CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		},
		docID: d.ID,
		body:  []byte(b.String()),
	}
	kept := s.reports[:0]
	for _, existing := range s.reports {
		if existing.FileName != name {
			kept = append(kept, existing)
		}
	}
	s.reports = append(kept, r)
	sort.Slice(s.reports, func(i, j int) bool { return s.reports[i].FileName < s.reports[j].FileName })
	return r
}

func without(ids []string, drop string) []string {
	out := ids[:0:0]
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}
