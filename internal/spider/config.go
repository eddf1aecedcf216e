package spider

import "time"

// Config holds per-spider settings. Zero values fall back to the defaults below.
type Config struct {
	Activities     ActivitiesConfig     `mapstructure:"activities"`
	Kidspot        KidspotConfig        `mapstructure:"kidspot_art"`
	Soccer5s       Soccer5sConfig       `mapstructure:"soccer5s"`
	Geoapify       GeoapifyConfig       `mapstructure:"geoapify"`
	Serpapi        SerpapiConfig        `mapstructure:"serpapi"`
	Kidsbook       KidsbookConfig       `mapstructure:"kidsbook"`
	WesternSuburbs WesternSuburbsConfig `mapstructure:"western_suburbs"`
}

// ActivitiesConfig configures the activeactivities.com.au directory spider.
type ActivitiesConfig struct {
	StartURLs []string `mapstructure:"start_urls"`
}

// KidspotConfig configures the Kidspot art listing spider.
type KidspotConfig struct {
	StartURL string `mapstructure:"start_url"`
	MaxPages int    `mapstructure:"max_pages"`
}

// Soccer5sConfig configures the soccer5s spider.
type Soccer5sConfig struct {
	StartURL string `mapstructure:"start_url"`
	MaxLinks int    `mapstructure:"max_links"`
}

// GeoapifyConfig configures the Geoapify Places spider.
type GeoapifyConfig struct {
	APIKey     string   `mapstructure:"api_key"`
	BaseURL    string   `mapstructure:"base_url"`
	Cities     []string `mapstructure:"cities"`
	Categories []string `mapstructure:"categories"`
	RadiusM    int      `mapstructure:"radius_m"`
	Limit      int      `mapstructure:"limit"`
}

// SerpapiConfig configures the SerpApi Google Maps spider.
type SerpapiConfig struct {
	APIKey   string        `mapstructure:"api_key"`
	BaseURL  string        `mapstructure:"base_url"`
	Location string        `mapstructure:"location"`
	MinDelay time.Duration `mapstructure:"min_delay"`
	// Enrich fetches each place's website for extra details.
	Enrich *bool `mapstructure:"enrich"`
}

// KidsbookConfig configures the headless kidsbook.com.au spider.
type KidsbookConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	PhoneBaseURL string        `mapstructure:"phone_base_url"`
	Categories   []string      `mapstructure:"categories"`
	Locations    []string      `mapstructure:"locations"`
	MaxPages     int           `mapstructure:"max_pages"`
	PhoneWait    time.Duration `mapstructure:"phone_wait"`
}

// WesternSuburbsConfig configures the western-suburbs provider spider.
type WesternSuburbsConfig struct {
	ProviderURLs []string `mapstructure:"provider_urls"`
	// NameOverrides maps a URL substring to the provider's display name.
	NameOverrides map[string]string `mapstructure:"name_overrides"`
	Headless      bool              `mapstructure:"headless"`
}

var defaultActivitiesURLs = []string{
	"https://www.activeactivities.com.au/directory/category/arts-and-crafts/",
	"https://www.activeactivities.com.au/directory/category/health-and-fitness/",
	"https://www.activeactivities.com.au/directory/category/hobbies/",
}

const (
	defaultKidspotURL      = "https://www.kidspot.com.au/things-to-do/activities/art-and-craft"
	defaultKidspotMaxPages = 10
	defaultSoccer5sURL     = "https://dandenong.soccer5s.com/"
	defaultSoccer5sLinks   = 50
	defaultGeoapifyURL     = "https://api.geoapify.com/v2/places"
	defaultGeoapifyRadius  = 8000
	defaultGeoapifyLimit   = 100
	defaultSerpapiURL      = "https://serpapi.com/search.json"
	defaultSerpapiLocation = "Melbourne"
	defaultSerpapiDelay    = 1500 * time.Millisecond
	defaultKidsbookURL     = "https://kidsbook.com.au"
	defaultKidsbookPhone   = "https://app.kidsbook.io"
	defaultKidsbookPages   = 20
	defaultPhoneWait       = 10 * time.Second
)

var defaultGeoapifyCities = []string{"Melbourne", "Sydney", "Brisbane", "Perth", "Adelaide"}

var defaultGeoapifyCategories = []string{
	"leisure.playground",
	"activity.sports_centre",
	"education.school",
	"entertainment.museum",
	"leisure.park",
	"childcare.kindergarten",
	"childcare.nursery",
	"entertainment.cinema",
}

var defaultKidsbookCategories = []string{
	"art", "dance", "drama", "martialarts", "music", "stem", "sport", "tutoring", "wellbeing",
}

var defaultKidsbookLocations = []string{"vic"}

var defaultProviderURLs = []string{
	"https://wildatartkids.com.au/",
	"https://www.codecamp.com.au/",
	"https://www.bkgymswim.com.au/bks-gymnastics-caroline-springs/",
	"https://samuraikarate.com/sunshine-dojo-vic/",
	"https://www.gymnastics-unlimited.com.au/",
	"https://www.pointcookdance.com.au/",
	"https://www.brooksschoolofdance.com/",
	"https://www.martialjourney.com/",
}

// DefaultNameOverrides names the default western-suburbs providers.
var DefaultNameOverrides = map[string]string{
	"samuraikarate":        "Samurai Karate Sunshine",
	"pointcookdance":       "Point Cook Dance Centre",
	"brooksschoolofdance":  "Brooks School of Dance",
	"wildatartkids":        "Wild at Art KIDS",
	"bkgymswim":            "BK's Gymnastics Caroline Springs",
	"gymnastics-unlimited": "Gymnastics Unlimited Australia",
	"martialjourney":       "Martial Journey Academy",
	"codecamp":             "Code Camp",
}

func orStrings(v, def []string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}

func orString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

// Default builds a registry with every spider configured from cfg.
func Default(cfg Config) *Registry {
	r := NewRegistry()
	for _, s := range []Spider{
		NewActivities(cfg.Activities),
		NewKidspotArt(cfg.Kidspot),
		NewSoccer5s(cfg.Soccer5s),
		NewGeoapify(cfg.Geoapify),
		NewSerpapi(cfg.Serpapi),
		NewKidsbook(cfg.Kidsbook),
		NewWesternSuburbs(cfg.WesternSuburbs),
	} {
		// Names are constants and distinct.
		_ = r.Register(s)
	}
	return r
}
