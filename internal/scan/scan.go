// Package scan persists patch assessments and groups them by site.
package scan

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"reefscan/internal/stress"
)

// ErrSiteNotFound is returned when no scan carries the requested site key.
var ErrSiteNotFound = errors.New("site not found")

// Scan is one assessed patch.
type Scan struct {
	ID               string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt        time.Time `gorm:"not null;index" json:"created_at"`
	ModelID          string    `gorm:"size:36" json:"model_id"`
	ImageName        string    `gorm:"size:255" json:"image_name"`
	ImageCount       int       `gorm:"not null;default:0" json:"image_count"`
	Latitude         *float64  `json:"latitude"`
	Longitude        *float64  `json:"longitude"`
	SurfaceTemp      float64   `json:"surface_temp"`
	WQI              float64   `json:"wqi"`
	PH               float64   `json:"ph"`
	PatchStress      float64   `gorm:"not null" json:"patch_stress"`
	FinalStressIndex float64   `gorm:"not null" json:"final_stress_index"`
	MainStressFactor string    `gorm:"size:32" json:"main_stress_factor"`
	DominantLabel    string    `gorm:"size:64" json:"dominant_label"`
	Confidence       float64   `json:"confidence"`
	Recovery         string    `gorm:"size:16" json:"recovery"`
}

func (Scan) TableName() string {
	return "coral_scans"
}

// BeforeCreate assigns an id to new scans.
func (s *Scan) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// FromAssessment builds a scan from a patch assessment. lat and lon may be
// nil when the patch was not located.
func FromAssessment(a stress.Assessment, cond stress.Conditions, lat, lon *float64) Scan {
	return Scan{
		Latitude:         lat,
		Longitude:        lon,
		SurfaceTemp:      cond.SurfaceTemp,
		WQI:              cond.WQI,
		PH:               cond.PH,
		PatchStress:      a.PatchStress,
		FinalStressIndex: a.FinalStressIndex,
		MainStressFactor: a.MainFactor,
		DominantLabel:    a.Label,
		Confidence:       a.Confidence,
		Recovery:         a.Recovery,
	}
}

// SiteKey formats a location as "<lat>, <lon>".
func SiteKey(lat, lon float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + ", " + strconv.FormatFloat(lon, 'f', -1, 64)
}

// Site returns the scan's site key, or false when it has no coordinates.
func (s Scan) Site() (string, bool) {
	if s.Latitude == nil || s.Longitude == nil {
		return "", false
	}
	return SiteKey(*s.Latitude, *s.Longitude), true
}

// Site is every scan taken at one location, oldest first.
type Site struct {
	Location string `json:"location"`
	Scans    []Scan `json:"scans"`
}

// Store reads and writes scans.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an open database.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the coral_scans table.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Scan{})
}

// Create inserts a scan, filling its id and creation time.
func (s *Store) Create(ctx context.Context, sc *Scan) error {
	return s.db.WithContext(ctx).Create(sc).Error
}

// List returns every scan ordered by creation time.
func (s *Store) List(ctx context.Context) ([]Scan, error) {
	var rows []Scan
	if err := s.db.WithContext(ctx).Order("created_at ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Sites groups every located scan by site key. Sites appear in the order of
// their first scan.
func (s *Store) Sites(ctx context.Context) ([]Site, error) {
	rows, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return GroupBySite(rows), nil
}

// SiteScans returns the scans of one site, oldest first.
func (s *Store) SiteScans(ctx context.Context, key string) ([]Scan, error) {
	sites, err := s.Sites(ctx)
	if err != nil {
		return nil, err
	}
	for _, site := range sites {
		if site.Location == key {
			return site.Scans, nil
		}
	}
	return nil, ErrSiteNotFound
}

// GroupBySite groups ordered scans by site key, skipping scans without
// coordinates.
func GroupBySite(rows []Scan) []Site {
	index := map[string]int{}
	var out []Site
	for _, sc := range rows {
		key, ok := sc.Site()
		if !ok {
			continue
		}
		i, seen := index[key]
		if !seen {
			i = len(out)
			index[key] = i
			out = append(out, Site{Location: key})
		}
		out[i].Scans = append(out[i].Scans, sc)
	}
	return out
}
