package adapter

import (
	"strconv"
	"strings"

	"github.com/sells-group/property-scorer/internal/address"
)

// Known vNext sources.
const (
	SourcePhillipJonesLaw    = "phillipjoneslaw"
	SourceClearRecon         = "clearrecon"
	SourceTNLedger           = "tnledger"
	SourceWabiPowerBI        = "wabipowerbi"
	SourceWilsonAssociates   = "wilsonassociates"
	SourceConnectedInvestors = "connectedinvestors"
)

var firmNames = map[string]string{
	SourcePhillipJonesLaw:    "Phillip Jones Law",
	SourceClearRecon:         "ClearRecon",
	SourceTNLedger:           "TN Ledger",
	SourceWabiPowerBI:        "Logs.com",
	SourceWilsonAssociates:   "Wilson Associates",
	SourceConnectedInvestors: "Connected Investors",
}

// Fields are the canonical values pulled from one source record.
type Fields struct {
	Address      string
	City         string
	County       string
	Date         string
	Time         string
	Firm         string
	Status       string
	EventType    string
	PropertyType string
	ParcelAPN    string
	Zip          string
	Lat          *float64
	Lon          *float64
	Beds         *int
	Baths        *float64
	Sqft         *int

	Emails     []string
	Phones     []string
	OwnerNames []string
}

// ExtractFields maps a source's own field names onto Fields. County is
// left empty when the source does not provide one.
func ExtractFields(source string, f map[string]any) Fields {
	src := strings.ToLower(strings.TrimSpace(source))
	get := func(keys ...string) string { return firstString(f, keys...) }

	var out Fields
	switch src {
	case SourcePhillipJonesLaw:
		out.Address = get("PropertyAddress")
		out.Date = get("SaleDate")
		out.Time = get("SaleTime")
		out.County = address.ProperCase(get("County"))
	case SourceClearRecon:
		out.Address = get("PropertyAddress")
		out.Date = get("SaleDate")
	case SourceTNLedger:
		out.Address = get("address_detail", "property_address_list")
		out.Date = get("advertised_auction_date_detail", "advertised_auction_date_list")
		out.Time = get("auction_time")
	case SourceWabiPowerBI:
		out.Address = get("FULL_ADDRESS")
		out.Date = get("SALE_DATE")
		out.Time = get("SALE_TIME")
		out.County = get("COUNTY_NAME")
	case SourceWilsonAssociates:
		out.Address = get("PropertyAddress")
		out.Date = get("SaleDate")
		out.Time = get("SaleTime")
		out.County = get("County")
		out.City = get("City")
	case SourceConnectedInvestors:
		out.Address = get("address", "searchAddress")
		out.Emails = splitList(get("owner_emails", "emails"), ",")
		out.Phones = splitList(get("owner_phones", "phones"), ",")
		out.OwnerNames = splitList(get("owner_info", "owners"), "|")
		out.Emails = append(out.Emails, stringList(f["emails"])...)
		out.Phones = append(out.Phones, stringList(f["phones"])...)
		out.OwnerNames = append(out.OwnerNames, stringList(f["owners"])...)
	default:
		out.Address = get("PropertyAddress", "address", "full_address")
		out.Date = get("SaleDate", "date", "event_date")
		out.Time = get("SaleTime", "time", "event_time")
		out.County = get("County", "county")
		out.City = get("City", "city")
	}

	out.Firm = get("Auctioneer")
	if out.Firm == "" {
		out.Firm = firmNames[src]
	}
	if out.Firm == "" {
		out.Firm = src
	}
	if out.City == "" {
		out.City = address.City(out.Address)
	}

	out.Status = get("status", "Status")
	out.EventType = get("event_type", "EventType")
	out.PropertyType = get("property_type", "PropertyType")
	out.ParcelAPN = get("parcel_apn", "APN", "ParcelNumber")
	out.Zip = get("zip", "Zip", "ZIP")
	out.Lat = firstFloat(f, "lat", "latitude", "Latitude")
	out.Lon = firstFloat(f, "lon", "lng", "longitude", "Longitude")
	out.Baths = firstFloat(f, "baths", "Baths")
	out.Beds = firstInt(f, "beds", "Beds")
	out.Sqft = firstInt(f, "sqft", "Sqft", "square_feet")
	return out
}

// firstString returns the first non-empty scalar among keys. Keys match
// exactly first, then case-insensitively, since file exports arrive with
// normalized lower-case headers.
func firstString(f map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := lookup(f, k)
		if !ok {
			continue
		}
		if _, isList := v.([]any); isList {
			continue
		}
		if s := strings.TrimSpace(stringify(v)); s != "" {
			return s
		}
	}
	return ""
}

func lookup(f map[string]any, key string) (any, bool) {
	if v, ok := f[key]; ok {
		return v, true
	}
	for k, v := range f {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

func firstFloat(f map[string]any, keys ...string) *float64 {
	for _, k := range keys {
		s := firstString(f, k)
		if s == "" {
			continue
		}
		if v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64); err == nil {
			return &v
		}
	}
	return nil
}

func firstInt(f map[string]any, keys ...string) *int {
	v := firstFloat(f, keys...)
	if v == nil {
		return nil
	}
	i := int(*v)
	return &i
}

func splitList(s, sep string) []string {
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func stringList(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range list {
		if s := strings.TrimSpace(stringify(item)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
