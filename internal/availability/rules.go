// Package availability определяет, можно ли выбрать дату самовывоза.
package availability

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmeshcher/pickup-storefront/internal/model"
)

// ErrInvalidRules возвращается при некорректной конфигурации правил.
var ErrInvalidRules = errors.New("invalid availability rules")

// DateRange задаёт включительный диапазон календарных дат.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains сообщает, попадает ли дата в диапазон, включая границы.
func (r DateRange) Contains(date time.Time) bool {
	d := dayNumber(date)
	return d >= dayNumber(r.Start) && d <= dayNumber(r.End)
}

// StaticRules содержит неизменяемые правила доступности, загружаемые при старте.
type StaticRules struct {
	MinLeadDays     int
	MaxLeadDays     int
	BlockedWeekdays map[time.Weekday]bool
	Holidays        []DateRange
	// Overrides заменяет DailyLimit для отдельных дат (ключ в формате YYYY-MM-DD).
	Overrides  map[string]int
	DailyLimit int
	Location   *time.Location
}

// RulesConfig описывает правила в строковом виде, как они приходят из окружения.
type RulesConfig struct {
	MinLeadDays     int
	MaxLeadDays     int
	BlockedWeekdays []string
	Holidays        []string
	Overrides       map[string]int
	DailyLimit      int
	Timezone        string
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"sun":       time.Sunday,
	"monday":    time.Monday,
	"mon":       time.Monday,
	"tuesday":   time.Tuesday,
	"tue":       time.Tuesday,
	"wednesday": time.Wednesday,
	"wed":       time.Wednesday,
	"thursday":  time.Thursday,
	"thu":       time.Thursday,
	"friday":    time.Friday,
	"fri":       time.Friday,
	"saturday":  time.Saturday,
	"sat":       time.Saturday,
}

// ParseRules проверяет конфигурацию и строит StaticRules.
func ParseRules(cfg RulesConfig) (StaticRules, error) {
	loc := time.Local
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return StaticRules{}, fmt.Errorf("%w: timezone %q: %v", ErrInvalidRules, tz, err)
		}
		loc = l
	}

	if cfg.MinLeadDays < 0 {
		return StaticRules{}, fmt.Errorf("%w: min lead days %d is negative", ErrInvalidRules, cfg.MinLeadDays)
	}
	if cfg.MaxLeadDays < cfg.MinLeadDays {
		return StaticRules{}, fmt.Errorf("%w: max lead days %d is below min lead days %d", ErrInvalidRules, cfg.MaxLeadDays, cfg.MinLeadDays)
	}
	if cfg.DailyLimit < 0 {
		return StaticRules{}, fmt.Errorf("%w: daily limit %d is negative", ErrInvalidRules, cfg.DailyLimit)
	}

	rules := StaticRules{
		MinLeadDays:     cfg.MinLeadDays,
		MaxLeadDays:     cfg.MaxLeadDays,
		BlockedWeekdays: make(map[time.Weekday]bool),
		Overrides:       make(map[string]int, len(cfg.Overrides)),
		DailyLimit:      cfg.DailyLimit,
		Location:        loc,
	}

	for _, name := range cfg.BlockedWeekdays {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		wd, ok := weekdayNames[name]
		if !ok {
			return StaticRules{}, fmt.Errorf("%w: unknown weekday %q", ErrInvalidRules, name)
		}
		rules.BlockedWeekdays[wd] = true
	}

	for _, raw := range cfg.Holidays {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		r, err := parseRange(raw, loc)
		if err != nil {
			return StaticRules{}, err
		}
		rules.Holidays = append(rules.Holidays, r)
	}

	for key, limit := range cfg.Overrides {
		d, err := time.ParseInLocation(model.DateLayout, strings.TrimSpace(key), loc)
		if err != nil {
			return StaticRules{}, fmt.Errorf("%w: override date %q", ErrInvalidRules, key)
		}
		if limit < 0 {
			return StaticRules{}, fmt.Errorf("%w: override limit for %s is negative", ErrInvalidRules, key)
		}
		rules.Overrides[model.DateKey(d)] = limit
	}

	return rules, nil
}

// parseRange разбирает "YYYY-MM-DD..YYYY-MM-DD" или одиночную дату.
func parseRange(raw string, loc *time.Location) (DateRange, error) {
	startRaw, endRaw, found := strings.Cut(raw, "..")
	if !found {
		endRaw = startRaw
	}

	start, err := time.ParseInLocation(model.DateLayout, strings.TrimSpace(startRaw), loc)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: holiday start %q", ErrInvalidRules, raw)
	}
	end, err := time.ParseInLocation(model.DateLayout, strings.TrimSpace(endRaw), loc)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: holiday end %q", ErrInvalidRules, raw)
	}
	if end.Before(start) {
		return DateRange{}, fmt.Errorf("%w: holiday %q ends before it starts", ErrInvalidRules, raw)
	}

	return DateRange{Start: start, End: end}, nil
}

// dayNumber переводит календарную дату в номер дня от эпохи, не завися от часового пояса и перехода на летнее время.
func dayNumber(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}
