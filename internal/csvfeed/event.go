package csvfeed

import (
	"fmt"
	"io"

	"github.com/chorisonobeer/Sado-Matsuri-CalendarMap/pkg/models"
)

// Events feed header names.
const (
	EventColName        = "イベント名"
	EventColPeriod      = "開催期間"
	EventColPlace       = "場所"
	EventColHours       = "開始/終了時間"
	EventColDescription = "説明文"
	EventColTags        = "タグ"
	EventColOrganizer   = "主催者名"
	EventColOfficial    = "公式サイト"
	EventColInstagram   = "Instagram"
	EventColFacebook    = "Facebook"
	EventColX           = "X"

	imageColumns = 6
)

// ImageColumn returns the header of the n-th (1-based) event image slot.
func ImageColumn(n int) string { return fmt.Sprintf("画像URL%d", n) }

// EventSchema parses the secondary events feed. Besides the plain aliases it
// derives 開催期間 from 開始日/終了日 and 場所 from 会場名/住所.
type EventSchema struct {
	Normalizer Normalizer
}

// NewEventSchema returns the schema for the events feed.
func NewEventSchema() EventSchema {
	urls := []string{EventColOfficial, "公式リンク", EventColInstagram, EventColFacebook, EventColX}
	for i := 1; i <= imageColumns; i++ {
		urls = append(urls, ImageColumn(i))
	}
	return EventSchema{
		Normalizer: Normalizer{
			Aliases: []Alias{
				{Canonical: EventColDescription, Legacy: "簡単な説明"},
				{Canonical: EventColTags, Legacy: "詳細タグ"},
				{Canonical: EventColOfficial, Legacy: "公式リンク"},
				{Canonical: ImageColumn(1), Legacy: "写真URL"},
			},
			TrimFields: []string{EventColName, EventColPeriod, EventColPlace, EventColOrganizer, ColLatitude, ColLongitude},
			URLFields:  urls,
		},
	}
}

// Parse reads an events feed.
func (s EventSchema) Parse(r io.Reader) ([]models.Event, Stats, error) {
	return Parse(r, Options[models.Event]{
		RequiredFields: []string{EventColName},
		Transform:      s.transform,
	})
}

func (s EventSchema) transform(raw Row, i int) (models.Event, bool) {
	row := raw.Clone()
	if row.Get(EventColPeriod) == "" && row.Get(ColStartDate) != "" {
		end := row.Get(ColEndDate)
		if end == "" {
			end = row.Get(ColStartDate)
		}
		row[EventColPeriod] = row.Get(ColStartDate) + "～" + end
	}
	if row.Get(EventColPlace) == "" && row.Get("会場名") != "" {
		place := row.Get("会場名")
		if addr := row.Get("住所"); addr != "" {
			place += "（" + addr + "）"
		}
		row[EventColPlace] = place
	}
	row = s.Normalizer.Apply(row)

	if row.Get(EventColName) == "" {
		return models.Event{}, false
	}

	e := models.Event{
		ID:          fmt.Sprintf("event-%d", i),
		Index:       i,
		Name:        row.Get(EventColName),
		Period:      row.Get(EventColPeriod),
		Place:       row.Get(EventColPlace),
		Hours:       row.Get(EventColHours),
		Description: row.Get(EventColDescription),
		Tags:        row.Get(EventColTags),
		Organizer:   row.Get(EventColOrganizer),
		OfficialURL: row.Get(EventColOfficial),
		Instagram:   row.Get(EventColInstagram),
		Facebook:    row.Get(EventColFacebook),
		X:           row.Get(EventColX),
		Latitude:    row.Get(ColLatitude),
		Longitude:   row.Get(ColLongitude),
		ImageURLs:   models.StringSlice{},
	}
	for n := 1; n <= imageColumns; n++ {
		if v := row.Get(ImageColumn(n)); v != "" {
			e.ImageURLs = append(e.ImageURLs, v)
		}
	}
	return e, true
}
