package csvfeed

import (
	"fmt"
	"io"
	"regexp"
	"strconv"

	"github.com/chorisonobeer/Sado-Matsuri-CalendarMap/pkg/models"
)

// Festival feed header names.
const (
	ColID          = "ID"
	ColName        = "お祭り名"
	ColVenue       = "開催場所名"
	ColLatitude    = "緯度"
	ColLongitude   = "経度"
	ColStartDate   = "開始日"
	ColEndDate     = "終了日"
	ColFee         = "無料か有料か"
	ColParking     = "駐車場の有無"
	ColCategory    = "上位カテゴリ"
	ColScale       = "規模感"
	ColStatus      = "開催ステータス"
	ColDescription = "詳細"
	ColHours       = "営業時間"
	ColClosedDays  = "定休日"
	ColOfficialURL = "公式サイトURL"

	photoColumns = 5
	tagColumns   = 8
)

// PhotoColumn returns the header of the n-th (1-based) photo slot.
func PhotoColumn(n int) string { return fmt.Sprintf("写真URL%d", n) }

// TagColumn returns the header of the n-th (1-based) tag slot.
func TagColumn(n int) string { return fmt.Sprintf("詳細タグ%d", n) }

// DefaultRequiredFields are the columns a festival row cannot do without.
var DefaultRequiredFields = []string{ColLatitude, ColLongitude, ColName}

// DefaultFestivalAliases maps the older sheet layout onto the canonical one.
var DefaultFestivalAliases = []Alias{
	{Canonical: PhotoColumn(1), Legacy: "写真URL"},
	{Canonical: ColDescription, Legacy: "簡単な説明"},
	{Canonical: ColOfficialURL, Legacy: "公式サイト"},
	{Canonical: ColCategory, Legacy: "カテゴリ"},
	{Canonical: ColParking, Legacy: "駐車場"},
}

var coordinatePattern = regexp.MustCompile(`^-?[0-9]+(\.[0-9]+)?$`)

// ValidCoordinate reports whether s is a plain decimal degree value.
func ValidCoordinate(s string) bool {
	return coordinatePattern.MatchString(s)
}

// FestivalSchema parses the primary festival feed.
type FestivalSchema struct {
	RequiredFields []string
	Normalizer     Normalizer
}

// NewFestivalSchema builds the schema with the given required fields and alias
// table. Nil arguments select the defaults.
func NewFestivalSchema(required []string, aliases []Alias) FestivalSchema {
	if required == nil {
		required = DefaultRequiredFields
	}
	if aliases == nil {
		aliases = DefaultFestivalAliases
	}

	trim := []string{
		ColID, ColName, ColVenue, ColLatitude, ColLongitude, ColStartDate, ColEndDate,
		ColFee, ColParking, ColCategory, ColScale, ColStatus, ColDescription,
		ColHours, ColClosedDays,
	}
	for i := 1; i <= tagColumns; i++ {
		trim = append(trim, TagColumn(i))
	}
	urls := []string{ColOfficialURL}
	for i := 1; i <= photoColumns; i++ {
		urls = append(urls, PhotoColumn(i))
	}

	return FestivalSchema{
		RequiredFields: required,
		Normalizer: Normalizer{
			Aliases:    aliases,
			TrimFields: trim,
			URLFields:  urls,
		},
	}
}

// Parse reads a festival feed.
func (s FestivalSchema) Parse(r io.Reader) ([]models.Festival, Stats, error) {
	return Parse(r, Options[models.Festival]{
		RequiredFields: s.RequiredFields,
		Transform:      s.transform,
	})
}

func (s FestivalSchema) transform(raw Row, i int) (models.Festival, bool) {
	row := s.Normalizer.Apply(raw)

	name := row.Get(ColName)
	lat, lng := row.Get(ColLatitude), row.Get(ColLongitude)
	if name == "" || !ValidCoordinate(lat) || !ValidCoordinate(lng) {
		return models.Festival{}, false
	}

	id := row.Get(ColID)
	if id == "" {
		id = strconv.Itoa(i)
	}

	f := models.Festival{
		ID:           id,
		Index:        i,
		Name:         name,
		VenueName:    row.Get(ColVenue),
		Latitude:     lat,
		Longitude:    lng,
		StartDate:    row.Get(ColStartDate),
		EndDate:      row.Get(ColEndDate),
		Fee:          row.Get(ColFee),
		Parking:      row.Get(ColParking),
		Category:     row.Get(ColCategory),
		Scale:        row.Get(ColScale),
		Status:       row.Get(ColStatus),
		Description:  row.Get(ColDescription),
		OpeningHours: row.Get(ColHours),
		ClosedDays:   row.Get(ColClosedDays),
		OfficialURL:  row.Get(ColOfficialURL),
		PhotoURLs:    models.StringSlice{},
		Tags:         models.StringSlice{},
	}
	for n := 1; n <= photoColumns; n++ {
		if v := row.Get(PhotoColumn(n)); v != "" {
			f.PhotoURLs = append(f.PhotoURLs, v)
		}
	}
	for n := 1; n <= tagColumns; n++ {
		if v := row.Get(TagColumn(n)); v != "" {
			f.Tags = append(f.Tags, v)
		}
	}
	return f, true
}
