package rag

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/taurusduan/ragflow-plus/internal/citation"
	"github.com/taurusduan/ragflow-plus/internal/contextutil"
	"github.com/taurusduan/ragflow-plus/internal/llm"
	"github.com/taurusduan/ragflow-plus/internal/observability"
	"github.com/taurusduan/ragflow-plus/internal/retrieval"
	"github.com/taurusduan/ragflow-plus/internal/storage"
)

const sqlSystemPrompt = "You are a Database Administrator. You need to check the fields of the following tables based on the user's list of questions and write the SQL corresponding to the last question."

const sqlUserPrompt = `
Table name: %s;
Table of database fields are as follows:
%s

Question are as follows:
%s
Please write the SQL, only SQL, without any other explanations or text.
`

const sqlRetryPrompt = `

The SQL error you provided last time is as follows:
%s

Error issued by database as follows:
%s

Please correct the error and write SQL again, only SQL, without any other explanations or text.
`

const (
	sqlTemperature = 0.06
	// maxSelectFields caps the columns a "select *" is expanded to.
	maxSelectFields = 12
)

// forbiddenSelectFields are never expanded from "select *".
var forbiddenSelectFields = map[string]struct{}{
	"name_pinyin_kwd":   {},
	"edu_first_fea_kwd": {},
	"degree_kwd":        {},
	"sch_rank_kwd":      {},
	"edu_fea_kwd":       {},
}

var (
	thinkRe     = regexp.MustCompile(`(?s)<think>.*</think>`)
	newlineRe   = regexp.MustCompile(`[\r\n]+`)
	spacesRe    = regexp.MustCompile(` +`)
	statementRe = regexp.MustCompile("([;；]|```).*")
	aggregateRe = regexp.MustCompile(`((sum|avg|max|min|count)\(|group by )`)
	labelRe     = regexp.MustCompile(`(/.*|（[^（）]+）)`)
	timestampRe = regexp.MustCompile(`T[0-9]{2}:[0-9]{2}:[0-9]{2}(\.[0-9]+Z)?\|`)
	emptyRowRe  = regexp.MustCompile(`[ |]+`)
	spaceAfter  = regexp.MustCompile(`(?i)([^a-z0-9.,\)>]) +([^ ])`)
	spaceBefore = regexp.MustCompile(`(?i)([^ ]) +([^a-z0-9.,\(<])`)
)

// SQL fallback results reported to metrics.
const (
	sqlAnswered = "answered"
	sqlRejected = "rejected"
	sqlFailed   = "failed"
	sqlEmpty    = "empty"
)

// TableRetriever runs read-only queries over tabular indexes.
type TableRetriever interface {
	SQLRetrieval(ctx context.Context, query string) (retrieval.TableResult, error)
}

// TabularRequest asks for a tabular answer to a question.
type TabularRequest struct {
	Question string
	// Fields is the schema of the tenant's tabular index.
	Fields   []storage.Field
	TenantID string
	Model    ChatModel
}

// queryAttempt is the state of one SQL generation round.
type queryAttempt struct {
	sql       string
	tries     int
	lastError string
}

// SQLFallback answers questions over tabular knowledge bases by having the
// model write SQL.
type SQLFallback struct {
	tables  TableRetriever
	metrics *observability.Metrics
}

// NewSQLFallback creates a fallback running queries on tables.
func NewSQLFallback(tables TableRetriever, metrics *observability.Metrics) *SQLFallback {
	return &SQLFallback{
		tables:  tables,
		metrics: metrics,
	}
}

// TryTabularAnswer asks the model for a query answering req.Question and
// renders its result as a markdown table with one citation marker per row.
//
// A query failing to execute is corrected once, with the database error fed
// back to the model. It returns nil whenever no usable table comes out, so
// the caller can fall back to free-text retrieval.
func (f *SQLFallback) TryTabularAnswer(ctx context.Context, req TabularRequest) *Fragment {
	logger := contextutil.LoggerFromContext(ctx)
	start := time.Now()
	defer func() {
		f.metrics.Stage("sql_fallback", time.Since(start))
	}()

	prompt := fmt.Sprintf(sqlUserPrompt, storage.IndexName(req.TenantID), fieldLines(req.Fields), req.Question)

	var attempt queryAttempt
	tbl, ok := f.query(ctx, req, prompt, &attempt)
	if !ok {
		f.metrics.SQLFallback(sqlRejected, false)
		return nil
	}
	if attempt.lastError != "" {
		logger.InfoContext(ctx, "retrying sql generation", "sql", attempt.sql, "error", attempt.lastError)
		retry := prompt + fmt.Sprintf(sqlRetryPrompt, attempt.sql, attempt.lastError)
		tbl, ok = f.query(ctx, req, retry, &attempt)
		if !ok {
			f.metrics.SQLFallback(sqlRejected, true)
			return nil
		}
	}
	retried := attempt.tries > 1

	if attempt.lastError != "" {
		logger.WarnContext(ctx, "sql fallback failed", "sql", attempt.sql, "error", attempt.lastError, "tries", attempt.tries)
		f.metrics.SQLFallback(sqlFailed, retried)
		return nil
	}
	if len(tbl.Rows) == 0 {
		logger.DebugContext(ctx, "sql fallback returned no rows", "sql", attempt.sql)
		f.metrics.SQLFallback(sqlEmpty, retried)
		return nil
	}

	frag := renderTable(ctx, tbl, req.Fields, attempt.sql)
	f.metrics.SQLFallback(sqlAnswered, retried)
	return frag
}

// query generates, sanitizes and runs one statement. It reports false when
// the model call fails or its output is not a select statement. Execution
// errors are recorded on attempt.
func (f *SQLFallback) query(ctx context.Context, req TabularRequest, prompt string, attempt *queryAttempt) (retrieval.TableResult, bool) {
	logger := contextutil.LoggerFromContext(ctx)

	raw, err := req.Model.Chat(ctx, sqlSystemPrompt, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, llm.ChatParams{}.WithTemperature(sqlTemperature))
	if err != nil {
		logger.WarnContext(ctx, "failed to generate sql", "error", err)
		return retrieval.TableResult{}, false
	}

	sql, ok := sanitizeSQL(raw)
	if !ok {
		logger.DebugContext(ctx, "model output is not a select statement", "output", raw)
		return retrieval.TableResult{}, false
	}
	sql = forceCitationColumns(sql, req.Fields)
	logger.DebugContext(ctx, "generated sql", "question", req.Question, "sql", sql)

	attempt.sql = sql
	attempt.tries++
	attempt.lastError = ""

	tbl, err := f.tables.SQLRetrieval(ctx, sql)
	if err != nil {
		attempt.lastError = err.Error()
	}
	return tbl, true
}

func fieldLines(fields []storage.Field) string {
	lines := make([]string, len(fields))
	for i, fld := range fields {
		lines[i] = fld.Name + ": " + fld.Label
	}
	return strings.Join(lines, "\n")
}

// sanitizeSQL reduces model output to a single lowercase select statement.
func sanitizeSQL(raw string) (string, bool) {
	sql := thinkRe.ReplaceAllString(raw, "")
	sql = newlineRe.ReplaceAllString(strings.ToLower(sql), " ")
	if i := strings.Index(sql, "select "); i > 0 {
		sql = sql[i:]
	}
	sql = spacesRe.ReplaceAllString(sql, " ")
	sql = statementRe.ReplaceAllString(sql, "")
	sql = strings.TrimSpace(sql)
	if !strings.HasPrefix(sql, "select ") {
		return "", false
	}
	return sql, true
}

// forceCitationColumns makes a non-aggregating query return the doc_id and
// docnm_kwd columns rows are cited by.
func forceCitationColumns(sql string, fields []storage.Field) string {
	if aggregateRe.MatchString(sql) {
		return sql
	}
	prefix := "select " + storage.ColumnDocID + "," + storage.ColumnDocName + ","
	if !strings.HasPrefix(sql, "select *") {
		return prefix + strings.TrimPrefix(sql, "select ")
	}

	var cols []string
	for _, fld := range fields {
		if _, ok := forbiddenSelectFields[fld.Name]; ok {
			continue
		}
		if len(cols) == maxSelectFields {
			break
		}
		cols = append(cols, fld.Name)
	}
	rest := strings.TrimPrefix(sql, "select *")
	if len(cols) == 0 {
		return strings.TrimSuffix(prefix, ",") + rest
	}
	return prefix + strings.Join(cols, ",") + rest
}

// renderTable renders tbl as a markdown table. Rows that are blank once
// spaces are removed are dropped and every remaining row ends with a marker
// for its position. Without doc_id and docnm_kwd columns rows cannot be
// traced to documents and the reference is empty.
func renderTable(ctx context.Context, tbl retrieval.TableResult, fields []storage.Field, sql string) *Fragment {
	labels := make(map[string]string, len(fields))
	for _, fld := range fields {
		labels[fld.Name] = fld.Label
	}

	docIdx, nameIdx := -1, -1
	var visible []int
	for i, col := range tbl.Columns {
		switch {
		case col == storage.ColumnDocID:
			if docIdx < 0 {
				docIdx = i
			}
		case col == storage.ColumnDocName:
			if nameIdx < 0 {
				nameIdx = i
			}
		default:
			visible = append(visible, i)
		}
	}

	header := make([]string, len(visible))
	rule := make([]string, len(visible))
	for j, i := range visible {
		label, ok := labels[tbl.Columns[i]]
		if !ok {
			label = tbl.Columns[i]
		}
		header[j] = labelRe.ReplaceAllString(label, "")
		rule[j] = "------"
	}
	head := "|" + strings.Join(header, "|") + "|"
	line := "|" + strings.Join(rule, "|")
	if docIdx >= 0 {
		head += "Source|"
		line += "|------|"
	}

	var rows []string
	var kept [][]any
	for _, r := range tbl.Rows {
		cells := make([]string, len(visible))
		for j, i := range visible {
			cells[j] = rmSpace(cellText(r[i]))
		}
		row := "|" + strings.Join(cells, "|") + "|"
		if emptyRowRe.ReplaceAllString(row, "") == "" {
			continue
		}
		rows = append(rows, row+" "+citation.Format(len(rows))+" |")
		kept = append(kept, r)
	}
	body := timestampRe.ReplaceAllString(strings.Join(rows, "\n"), "|")
	answer := strings.Join([]string{head, line, body}, "\n")

	if docIdx < 0 || nameIdx < 0 {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "sql result lacks citation columns", "sql", sql)
		return &Fragment{Answer: answer, Reference: emptyReference(), Prompt: sqlSystemPrompt}
	}

	ref := emptyReference()
	for _, r := range kept {
		ref.Chunks = append(ref.Chunks, retrieval.Chunk{
			DocID:   cellText(r[docIdx]),
			DocName: cellText(r[nameIdx]),
		})
	}
	pos := make(map[string]int)
	for _, r := range tbl.Rows {
		id := cellText(r[docIdx])
		if i, ok := pos[id]; ok {
			ref.DocAggs[i].Count++
			continue
		}
		pos[id] = len(ref.DocAggs)
		ref.DocAggs = append(ref.DocAggs, retrieval.DocAgg{DocID: id, DocName: cellText(r[nameIdx]), Count: 1})
	}
	ref.Total = len(ref.Chunks)
	return &Fragment{Answer: answer, Reference: ref, Prompt: sqlSystemPrompt}
}

func cellText(v any) string {
	switch v := v.(type) {
	case nil:
		return " "
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format("2006-01-02T15:04:05")
	default:
		return fmt.Sprint(v)
	}
}

// rmSpace removes spaces that do not separate two latin words.
func rmSpace(s string) string {
	s = spaceAfter.ReplaceAllString(s, "$1$2")
	return spaceBefore.ReplaceAllString(s, "$1$2")
}
