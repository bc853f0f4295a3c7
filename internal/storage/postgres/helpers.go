package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"

	v1 "github.com/beaconhq/beacon-collector/internal/api/v1"
)

// nullable maps a zero value to SQL NULL so the stored record distinguishes
// "absent" from empty, matching the canonical data model.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(i int) interface{} {
	if i == 0 {
		return nil
	}
	return i
}

func nullableInt64(i int64) interface{} {
	if i == 0 {
		return nil
	}
	return i
}

func nullableFloat(f float64) interface{} {
	if f == 0 {
		return nil
	}
	return f
}

func marshalBag(bag map[string]interface{}) (interface{}, error) {
	if len(bag) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(bag)
	if err != nil {
		return nil, fmt.Errorf("marshal payload bag: %w", err)
	}
	return raw, nil
}

// eventArgs builds the insert argument list. Order must match eventColumns.
func eventArgs(evt *v1.Event) ([]interface{}, error) {
	props, err := marshalBag(evt.Properties)
	if err != nil {
		return nil, err
	}
	ecom, err := marshalBag(evt.Ecommerce)
	if err != nil {
		return nil, err
	}
	lead, err := marshalBag(evt.Lead)
	if err != nil {
		return nil, err
	}

	return []interface{}{
		evt.ID, evt.SiteID, evt.Name, evt.Timestamp, evt.ReceivedAt, nullable(evt.ScriptVersion),
		nullable(evt.ClientID), nullable(evt.UserID), nullable(evt.SessionID),
		nullable(evt.EmailHash), nullable(evt.PhoneHash), nullable(evt.FirstNameHash), nullable(evt.LastNameHash),
		nullable(evt.UserAgent), nullable(evt.DeviceCategory), nullable(evt.Browser), nullable(evt.BrowserVersion), nullable(evt.OperatingSystem),
		nullable(evt.ScreenResolution), nullable(evt.ViewportSize), nullable(evt.Language), nullable(evt.Timezone),
		nullable(evt.IPAddress), nullable(evt.IPCity), nullable(evt.IPRegion), nullable(evt.IPCountry), nullable(evt.IPPostalCode),
		nullableFloat(evt.IPLatitude), nullableFloat(evt.IPLongitude), nullable(evt.IPTimezone), nullable(evt.IPOrganization),
		nullable(evt.IPASN), nullable(evt.IPASNName), nullable(evt.IPASNDomain), nullable(evt.IPCompanyName), nullable(evt.IPCompanyDomain),
		nullable(evt.IPConnectionType), evt.IPIsVPN, evt.IPIsProxy, evt.IPIsTor, evt.IPIsHosting, nullable(evt.VisitorType),
		nullable(evt.PageURL), nullable(evt.PagePath), nullable(evt.PageTitle), nullable(evt.PageHostname), nullable(evt.PageReferrer), nullable(evt.ReferrerHostname),
		nullable(evt.UTMSource), nullable(evt.UTMMedium), nullable(evt.UTMCampaign), nullable(evt.UTMTerm), nullable(evt.UTMContent),
		nullable(evt.GCLID), nullable(evt.FBCLID), nullable(evt.TTCLID),
		nullable(evt.FirstUTMSource), nullable(evt.FirstUTMMedium), nullable(evt.FirstUTMCampaign), nullable(evt.FirstUTMTerm),
		nullable(evt.FirstUTMContent), nullable(evt.FirstReferrer),
		nullableInt64(evt.EngagementTimeMs), nullableInt(evt.ScrollDepthPercent), evt.IsFirstVisit,
		nullableInt(evt.SessionNumber), nullableInt(evt.PageViewNumber),
		props, ecom, lead,
	}, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanEventRow reads one events row (id + eventColumns order) back into the
// canonical shape.
func scanEventRow(row scanner) (*v1.Event, error) {
	var evt v1.Event
	var (
		scriptVersion, clientID, userID, sessionID                        sql.NullString
		emailHash, phoneHash, firstNameHash, lastNameHash                 sql.NullString
		userAgent, deviceCategory, browser, browserVersion, os            sql.NullString
		screenResolution, viewportSize, language, timezone                sql.NullString
		ipAddress, ipCity, ipRegion, ipCountry, ipPostal                  sql.NullString
		ipLat, ipLng                                                      sql.NullFloat64
		ipTimezone, ipOrg, ipASN, ipASNName, ipASNDomain                  sql.NullString
		ipCompanyName, ipCompanyDomain, ipConnectionType, visitorType     sql.NullString
		pageURL, pagePath, pageTitle, pageHostname, pageReferrer, refHost sql.NullString
		utmSource, utmMedium, utmCampaign, utmTerm, utmContent            sql.NullString
		gclid, fbclid, ttclid                                             sql.NullString
		fSource, fMedium, fCampaign, fTerm, fContent, fReferrer           sql.NullString
		engagement                                                        sql.NullInt64
		scrollDepth, sessionNumber, pageViewNumber                        sql.NullInt64
		propsJSON, ecomJSON, leadJSON                                     []byte
	)

	err := row.Scan(
		&evt.Seq,
		&evt.ID, &evt.SiteID, &evt.Name, &evt.Timestamp, &evt.ReceivedAt, &scriptVersion,
		&clientID, &userID, &sessionID,
		&emailHash, &phoneHash, &firstNameHash, &lastNameHash,
		&userAgent, &deviceCategory, &browser, &browserVersion, &os,
		&screenResolution, &viewportSize, &language, &timezone,
		&ipAddress, &ipCity, &ipRegion, &ipCountry, &ipPostal,
		&ipLat, &ipLng, &ipTimezone, &ipOrg,
		&ipASN, &ipASNName, &ipASNDomain, &ipCompanyName, &ipCompanyDomain,
		&ipConnectionType, &evt.IPIsVPN, &evt.IPIsProxy, &evt.IPIsTor, &evt.IPIsHosting, &visitorType,
		&pageURL, &pagePath, &pageTitle, &pageHostname, &pageReferrer, &refHost,
		&utmSource, &utmMedium, &utmCampaign, &utmTerm, &utmContent,
		&gclid, &fbclid, &ttclid,
		&fSource, &fMedium, &fCampaign, &fTerm, &fContent, &fReferrer,
		&engagement, &scrollDepth, &evt.IsFirstVisit,
		&sessionNumber, &pageViewNumber,
		&propsJSON, &ecomJSON, &leadJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("scan event row: %w", err)
	}

	evt.ScriptVersion = scriptVersion.String
	evt.ClientID = clientID.String
	evt.UserID = userID.String
	evt.SessionID = sessionID.String
	evt.EmailHash = emailHash.String
	evt.PhoneHash = phoneHash.String
	evt.FirstNameHash = firstNameHash.String
	evt.LastNameHash = lastNameHash.String
	evt.UserAgent = userAgent.String
	evt.DeviceCategory = deviceCategory.String
	evt.Browser = browser.String
	evt.BrowserVersion = browserVersion.String
	evt.OperatingSystem = os.String
	evt.ScreenResolution = screenResolution.String
	evt.ViewportSize = viewportSize.String
	evt.Language = language.String
	evt.Timezone = timezone.String
	evt.IPAddress = ipAddress.String
	evt.IPCity = ipCity.String
	evt.IPRegion = ipRegion.String
	evt.IPCountry = ipCountry.String
	evt.IPPostalCode = ipPostal.String
	evt.IPLatitude = ipLat.Float64
	evt.IPLongitude = ipLng.Float64
	evt.IPTimezone = ipTimezone.String
	evt.IPOrganization = ipOrg.String
	evt.IPASN = ipASN.String
	evt.IPASNName = ipASNName.String
	evt.IPASNDomain = ipASNDomain.String
	evt.IPCompanyName = ipCompanyName.String
	evt.IPCompanyDomain = ipCompanyDomain.String
	evt.IPConnectionType = ipConnectionType.String
	evt.VisitorType = visitorType.String
	evt.PageURL = pageURL.String
	evt.PagePath = pagePath.String
	evt.PageTitle = pageTitle.String
	evt.PageHostname = pageHostname.String
	evt.PageReferrer = pageReferrer.String
	evt.ReferrerHostname = refHost.String
	evt.UTMSource = utmSource.String
	evt.UTMMedium = utmMedium.String
	evt.UTMCampaign = utmCampaign.String
	evt.UTMTerm = utmTerm.String
	evt.UTMContent = utmContent.String
	evt.GCLID = gclid.String
	evt.FBCLID = fbclid.String
	evt.TTCLID = ttclid.String
	evt.FirstUTMSource = fSource.String
	evt.FirstUTMMedium = fMedium.String
	evt.FirstUTMCampaign = fCampaign.String
	evt.FirstUTMTerm = fTerm.String
	evt.FirstUTMContent = fContent.String
	evt.FirstReferrer = fReferrer.String
	evt.EngagementTimeMs = engagement.Int64
	evt.ScrollDepthPercent = int(scrollDepth.Int64)
	evt.SessionNumber = int(sessionNumber.Int64)
	evt.PageViewNumber = int(pageViewNumber.Int64)

	if len(propsJSON) > 0 {
		if err := json.Unmarshal(propsJSON, &evt.Properties); err != nil {
			return nil, fmt.Errorf("unmarshal properties: %w", err)
		}
	}
	if len(ecomJSON) > 0 {
		if err := json.Unmarshal(ecomJSON, &evt.Ecommerce); err != nil {
			return nil, fmt.Errorf("unmarshal ecommerce_data: %w", err)
		}
	}
	if len(leadJSON) > 0 {
		if err := json.Unmarshal(leadJSON, &evt.Lead); err != nil {
			return nil, fmt.Errorf("unmarshal lead_data: %w", err)
		}
	}

	return &evt, nil
}
