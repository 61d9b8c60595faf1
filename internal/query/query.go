// Package query переводит параметры запроса GET /data/endesa в запрос к хранилищу.
//
// Поддерживаются три источника условий:
//   - t выбирает коллекцию агрегатов;
//   - d1/d2 задают включительный диапазон по полю date (только для t=h и t=hp);
//   - q задаёт фрагмент JSON-объекта без фигурных скобок, например "y":2019.
//
// Фрагмент q не передаётся в хранилище как есть: допускаются только поля
// из белого списка и операторы сравнения.
package query

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/magabrotheeeer/endesa-gateway/internal/models"
)

// Ошибки разбора параметров, все они соответствуют 400 Bad Request.
var (
	ErrInvalidDiscriminator = errors.New("invalid discriminator")
	ErrInvalidDate          = errors.New("invalid date")
	ErrInvalidRange         = errors.New("invalid date range")
	ErrInvalidFilter        = errors.New("invalid filter")
	ErrFilterNotAllowed     = errors.New("filter not allowed")
	ErrFilterConflict       = errors.New("filter conflicts with date range")
)

// DateField поле с моментом времени в почасовых документах.
const DateField = "date"

var allowedFields = map[string]bool{
	DateField: true,
	"y":       true,
	"m":       true,
	"d":       true,
	"dd":      true,
	"h":       true,
}

var allowedOperators = map[string]bool{
	"$eq":  true,
	"$ne":  true,
	"$gt":  true,
	"$gte": true,
	"$lt":  true,
	"$lte": true,
	"$in":  true,
	"$nin": true,
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Build собирает запрос из параметров одного HTTP-запроса.
func Build(p models.QueryParams) (models.Query, error) {
	const op = "query.Build"

	disc := models.Discriminator(p.T)
	coll, ok := disc.Collection()
	if !ok {
		return models.Query{}, fmt.Errorf("%s: %w: %q", op, ErrInvalidDiscriminator, p.T)
	}

	q := models.Query{
		Discriminator: disc,
		Collection:    coll,
	}

	hasRange := false
	if disc.Hourly() && p.D1 != "" && p.D2 != "" {
		from, err := ParseDate(p.D1)
		if err != nil {
			return models.Query{}, fmt.Errorf("%s: d1: %w", op, err)
		}
		to, err := ParseDate(p.D2)
		if err != nil {
			return models.Query{}, fmt.Errorf("%s: d2: %w", op, err)
		}
		if from.After(to) {
			return models.Query{}, fmt.Errorf("%s: %w: d1 %s is after d2 %s", op, ErrInvalidRange,
				from.Format(time.RFC3339), to.Format(time.RFC3339))
		}
		q.Filter = append(q.Filter, DateRange(from, to))
		hasRange = true
	}

	if disc == models.ByHoursProjected {
		q.Projection = models.HourlyProjection()
	}

	if strings.TrimSpace(p.Q) != "" {
		extra, err := ParseFilter(p.Q)
		if err != nil {
			return models.Query{}, fmt.Errorf("%s: %w", op, err)
		}
		for _, e := range extra {
			if hasRange && e.Key == DateField {
				return models.Query{}, fmt.Errorf("%s: %w", op, ErrFilterConflict)
			}
		}
		q.Filter = append(q.Filter, extra...)
	}

	return q, nil
}

// DateRange возвращает условие {date: {$gte: from, $lte: to}}.
func DateRange(from, to time.Time) bson.E {
	return bson.E{Key: DateField, Value: bson.D{
		{Key: "$gte", Value: from},
		{Key: "$lte", Value: to},
	}}
}

// ParseDate разбирает дату в одном из поддерживаемых форматов и приводит её к UTC.
// Дата без часового пояса считается UTC. Окружающие кавычки отбрасываются.
// Пробел перед смещением вида HH:MM читается как "+".
func ParseDate(s string) (time.Time, error) {
	v := restoreOffsetSign(strings.Trim(strings.TrimSpace(s), `"'`))
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// restoreOffsetSign возвращает "+" смещению, которое пришло в строке запроса без
// экранирования: "2019-01-01T10:00:00 01:00" -> "2019-01-01T10:00:00+01:00".
func restoreOffsetSign(v string) string {
	n := len(v)
	if n < 7 || v[n-6] != ' ' || v[n-3] != ':' {
		return v
	}
	for _, i := range []int{n - 5, n - 4, n - 2, n - 1} {
		if v[i] < '0' || v[i] > '9' {
			return v
		}
	}
	return v[:n-6] + "+" + v[n-5:]
}

// ParseFilter разбирает фрагмент q как {q} и проверяет его по белому списку.
// Ключи возвращаются в отсортированном порядке.
func ParseFilter(fragment string) (bson.D, error) {
	doc := "{" + fragment + "}"
	dec := json.NewDecoder(strings.NewReader(doc))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: unexpected data after object", ErrInvalidFilter)
	}
	if err := rejectDuplicateKeys(doc); err != nil {
		return nil, err
	}

	filter := make(bson.D, 0, len(raw))
	for _, field := range sortedKeys(raw) {
		if !allowedFields[field] {
			return nil, fmt.Errorf("%w: field %q", ErrFilterNotAllowed, field)
		}
		v, err := fieldCondition(field, raw[field])
		if err != nil {
			return nil, err
		}
		filter = append(filter, bson.E{Key: field, Value: v})
	}
	return filter, nil
}

// rejectDuplicateKeys проверяет, что ни в одном объекте документа ключи не повторяются.
// Документ к этому моменту уже прошёл разбор.
func rejectDuplicateKeys(doc string) error {
	type frame struct {
		keys      map[string]bool
		object    bool
		expectKey bool
	}

	dec := json.NewDecoder(strings.NewReader(doc))
	dec.UseNumber()

	var stack []*frame
	valueDone := func() {
		if len(stack) > 0 && stack[len(stack)-1].object {
			stack[len(stack)-1].expectKey = true
		}
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidFilter, err)
		}

		if n := len(stack); n > 0 && stack[n-1].object && stack[n-1].expectKey {
			if tok == json.Delim('}') {
				stack = stack[:n-1]
				valueDone()
				continue
			}
			key, _ := tok.(string)
			if stack[n-1].keys[key] {
				return fmt.Errorf("%w: duplicate key %q", ErrInvalidFilter, key)
			}
			stack[n-1].keys[key] = true
			stack[n-1].expectKey = false
			continue
		}

		switch tok {
		case json.Delim('{'):
			stack = append(stack, &frame{keys: map[string]bool{}, object: true, expectKey: true})
		case json.Delim('['):
			stack = append(stack, &frame{})
		case json.Delim(']'):
			stack = stack[:len(stack)-1]
			valueDone()
		default:
			valueDone()
		}
	}
}

func fieldCondition(field string, v any) (any, error) {
	ops, ok := v.(map[string]any)
	if !ok {
		return scalar(field, v)
	}
	if len(ops) == 0 {
		return nil, fmt.Errorf("%w: empty condition on %q", ErrFilterNotAllowed, field)
	}

	cond := make(bson.D, 0, len(ops))
	for _, name := range sortedKeys(ops) {
		if !allowedOperators[name] {
			return nil, fmt.Errorf("%w: operator %q on %q", ErrFilterNotAllowed, name, field)
		}
		var (
			val any
			err error
		)
		if name == "$in" || name == "$nin" {
			val, err = list(field, ops[name])
		} else {
			val, err = scalar(field, ops[name])
		}
		if err != nil {
			return nil, err
		}
		cond = append(cond, bson.E{Key: name, Value: val})
	}
	return cond, nil
}

func list(field string, v any) (bson.A, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %q expects an array", ErrFilterNotAllowed, field)
	}
	out := make(bson.A, 0, len(items))
	for _, item := range items {
		s, err := scalar(field, item)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func scalar(field string, v any) (any, error) {
	if field == DateField {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %q expects a date string", ErrFilterNotAllowed, field)
		}
		return ParseDate(s)
	}

	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
		}
		return f, nil
	case string, bool:
		return val, nil
	default:
		return nil, fmt.Errorf("%w: unsupported value for %q", ErrFilterNotAllowed, field)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Key возвращает детерминированное текстовое представление запроса для ключей кеша.
func Key(q models.Query) string {
	var b bytes.Buffer
	b.WriteString(string(q.Collection))
	b.WriteByte(':')
	writeDoc(&b, q.Filter)
	b.WriteByte(':')
	writeDoc(&b, q.Projection)
	return b.String()
}

func writeDoc(b *bytes.Buffer, d bson.D) {
	if len(d) == 0 {
		b.WriteString("{}")
		return
	}
	data, err := bson.MarshalExtJSON(d, true, false)
	if err != nil {
		fmt.Fprintf(b, "%v", d)
		return
	}
	b.Write(data)
}
