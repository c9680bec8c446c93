package repo

import (
	"context"
	"database/sql"
	"time"

	"etraxis/internal/domain"
)

func (r Repo) InsertIssue(ctx context.Context, tx *sql.Tx, i domain.Issue) (int64, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO issues(subject, state_id, author_id, responsible_id, origin_id, created_at, changed_at, closed_at, resumes_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		i.Subject, i.StateID, i.AuthorID, nullableID(i.ResponsibleID), nullableID(i.OriginID),
		formatTime(i.CreatedAt), formatTime(i.ChangedAt), nullableTime(i.ClosedAt), nullableTime(i.ResumesAt))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateIssue writes the mutable columns of the issue back.
func (r Repo) UpdateIssue(ctx context.Context, tx *sql.Tx, i domain.Issue) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE issues SET subject=?, state_id=?, responsible_id=?, changed_at=?, closed_at=?, resumes_at=? WHERE id=?`,
		i.Subject, i.StateID, nullableID(i.ResponsibleID), formatTime(i.ChangedAt), nullableTime(i.ClosedAt), nullableTime(i.ResumesAt), i.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// LoadIssue loads the issue together with its state, template and project.
func (r Repo) LoadIssue(ctx context.Context, tx *sql.Tx, id int64) (domain.IssueContext, error) {
	var ic domain.IssueContext
	var responsible, origin sql.NullInt64
	var created, changed string
	var closed, resumes sql.NullString
	var stType, stResp string
	var pDesc sql.NullString
	var pCreated string
	var pSuspended int
	t, err := scanTemplateInto(r.q(tx).QueryRowContext(ctx, `SELECT `+templateColumns+`,
  i.id, i.subject, i.state_id, i.author_id, i.responsible_id, i.origin_id, i.created_at, i.changed_at, i.closed_at, i.resumes_at,
  s.id, s.template_id, s.name, s.type, s.responsible,
  p.id, p.name, p.description, p.created_at, p.suspended
FROM issues i
JOIN states s ON s.id=i.state_id
JOIN templates t ON t.id=s.template_id
JOIN projects p ON p.id=t.project_id
WHERE i.id=?`, id),
		&ic.Issue.ID, &ic.Issue.Subject, &ic.Issue.StateID, &ic.Issue.AuthorID, &responsible, &origin, &created, &changed, &closed, &resumes,
		&ic.State.ID, &ic.State.TemplateID, &ic.State.Name, &stType, &stResp,
		&ic.Project.ID, &ic.Project.Name, &pDesc, &pCreated, &pSuspended)
	if err != nil {
		return ic, err
	}
	ic.Template = t
	ic.Issue.ResponsibleID = nullInt64Ptr(responsible)
	ic.Issue.OriginID = nullInt64Ptr(origin)
	if ic.Issue.CreatedAt, err = parseTime(created); err != nil {
		return ic, err
	}
	if ic.Issue.ChangedAt, err = parseTime(changed); err != nil {
		return ic, err
	}
	if ic.Issue.ClosedAt, err = parseNullTime(closed); err != nil {
		return ic, err
	}
	if ic.Issue.ResumesAt, err = parseNullTime(resumes); err != nil {
		return ic, err
	}
	ic.State.Type = domain.StateType(stType)
	ic.State.Responsible = domain.StateResponsible(stResp)
	ic.Project.Description = pDesc.String
	ic.Project.Suspended = pSuspended != 0
	if ic.Project.CreatedAt, err = parseTime(pCreated); err != nil {
		return ic, err
	}
	return ic, nil
}

// ListIssueIDs returns the ids of the template's issues, newest first.
func (r Repo) ListIssueIDs(ctx context.Context, templateID int64) ([]int64, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT i.id FROM issues i JOIN states s ON s.id=i.state_id WHERE s.template_id=? ORDER BY i.id DESC`, templateID)
	if err != nil {
		return nil, err
	}
	return scanIDs(rows)
}

func (r Repo) InsertTransition(ctx context.Context, tx *sql.Tx, issueID, stateID, userID int64, at time.Time) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO transitions(issue_id, state_id, user_id, created_at) VALUES (?,?,?,?)`,
		issueID, stateID, userID, formatTime(at))
	return err
}

type TransitionRecord struct {
	StateID   int64     `json:"state_id"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at" format:"date-time"`
}

func (r Repo) IssueTransitions(ctx context.Context, issueID int64) ([]TransitionRecord, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT state_id, user_id, created_at FROM transitions WHERE issue_id=? ORDER BY id`, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []TransitionRecord
	for rows.Next() {
		var t TransitionRecord
		var at string
		if err := rows.Scan(&t.StateID, &t.UserID, &at); err != nil {
			return nil, err
		}
		if t.CreatedAt, err = parseTime(at); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) AddDependency(ctx context.Context, tx *sql.Tx, issueID, dependencyID int64) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO dependencies(issue_id, dependency_id) VALUES (?,?)`, issueID, dependencyID)
	return err
}

func (r Repo) RemoveDependency(ctx context.Context, tx *sql.Tx, issueID, dependencyID int64) error {
	_, err := r.q(tx).ExecContext(ctx, `DELETE FROM dependencies WHERE issue_id=? AND dependency_id=?`, issueID, dependencyID)
	return err
}

func (r Repo) Dependencies(ctx context.Context, issueID int64) ([]int64, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT dependency_id FROM dependencies WHERE issue_id=? ORDER BY dependency_id`, issueID)
	if err != nil {
		return nil, err
	}
	return scanIDs(rows)
}

// CountOpenDependencies counts dependencies of the issue that are not in a
// final state yet.
func (r Repo) CountOpenDependencies(ctx context.Context, issueID int64) (int, error) {
	return countRow(ctx, r.DB, `SELECT COUNT(*) FROM dependencies d
JOIN issues i ON i.id=d.dependency_id
JOIN states s ON s.id=i.state_id
WHERE d.issue_id=? AND s.type<>'final'`, issueID)
}

func (r Repo) AddRelated(ctx context.Context, tx *sql.Tx, issueID, relatedID int64) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO related_issues(issue_id, related_id) VALUES (?,?)`, issueID, relatedID)
	return err
}

func (r Repo) RemoveRelated(ctx context.Context, tx *sql.Tx, issueID, relatedID int64) error {
	_, err := r.q(tx).ExecContext(ctx, `DELETE FROM related_issues WHERE issue_id=? AND related_id=?`, issueID, relatedID)
	return err
}

func (r Repo) RelatedIssues(ctx context.Context, issueID int64) ([]int64, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT related_id FROM related_issues WHERE issue_id=? ORDER BY related_id`, issueID)
	if err != nil {
		return nil, err
	}
	return scanIDs(rows)
}
