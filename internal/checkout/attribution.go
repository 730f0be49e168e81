package checkout

import (
	"regexp"
	"strings"

	"storefront-be/internal/order"
)

var (
	tabletRegex = regexp.MustCompile(`(?i)ipad|tablet|playbook|silk|kindle`)
	mobileRegex = regexp.MustCompile(`(?i)mobi|iphone|ipod|android|blackberry|opera mini|iemobile|windows phone`)
)

// DeviceType classifies a User-Agent as tablet, mobile, desktop or unknown.
func DeviceType(userAgent string) string {
	ua := strings.TrimSpace(userAgent)
	switch {
	case ua == "":
		return "unknown"
	case isTablet(ua):
		return "tablet"
	case mobileRegex.MatchString(ua):
		return "mobile"
	default:
		return "desktop"
	}
}

func isTablet(ua string) bool {
	lower := strings.ToLower(ua)
	if strings.Contains(lower, "android") && !strings.Contains(lower, "mobile") {
		return true
	}
	return tabletRegex.MatchString(ua)
}

func buildAttribution(req Request) order.Attribution {
	return order.Attribution{
		DeviceType:   DeviceType(req.UserAgent),
		UTMSource:    req.UTM.Source,
		UTMMedium:    req.UTM.Medium,
		UTMCampaign:  req.UTM.Campaign,
		UTMTerm:      req.UTM.Term,
		UTMContent:   req.UTM.Content,
		InfluencerID: strings.TrimSpace(req.InfluencerID),
		Referrer:     req.Referrer,
	}
}
