package kyc

import (
	"regexp"
	"strings"
	"time"
)

// Field is one extracted value with its confidence. A nil confidence means
// the field was not extracted; zero is a legitimate low confidence and must
// not be used as the missing marker.
type Field struct {
	Value      string
	Confidence *float64
}

// Fields is the structured extraction for a submission.
type Fields struct {
	FirstName    Field
	MiddleName   Field
	LastName     Field
	Birthdate    *time.Time
	BirthdateConf *float64
	Address      Field
	IDNumber     Field
	Nationality  Field
	Sex          Field
	PlaceOfBirth Field

	ClearanceNumber       Field
	ClearanceType         string // NBI, POLICE or NONE
	ClearanceIssueDate    *time.Time
	ClearanceValidityDate *time.Time
}

// labelStops are the label tokens that terminate a captured value. Captures
// run greedily to end of line in RE2 (no lookahead), so values are cut at the
// first following label.
var labelStops = []string{
	"SURNAME", "GIVEN NAME", "GIVEN NAMES", "MIDDLE NAME", "LAST NAME", "FIRST NAME",
	"DATE OF BIRTH", "BIRTH DATE", "PSN", "PCN", "ID NUMBER", "LICENSE NO", "PASSPORT NO",
	"ADDRESS", "SEX", "PLACE OF BIRTH", "NATIONALITY", "CITIZENSHIP",
	"BLOOD TYPE", "EYES", "HEIGHT", "WEIGHT", "EXPIRES", "EXPIRATION",
}

// fieldPattern is one prioritized extraction rule. Weight is the pattern
// specificity in [0.5, 1.0]; per-field confidence = OCR mean confidence ×
// weight.
type fieldPattern struct {
	re     *regexp.Regexp
	weight float64
}

var (
	surnamePatterns = []fieldPattern{
		{regexp.MustCompile(`(?i)\bSURNAME[:.\s]+([A-ZÑ][A-ZÑa-zñ ,.'-]{1,40})`), 1.0},
		{regexp.MustCompile(`(?i)\bLAST NAME[:.\s]+([A-ZÑ][A-ZÑa-zñ ,.'-]{1,40})`), 0.9},
	}
	givenPatterns = []fieldPattern{
		{regexp.MustCompile(`(?i)\bGIVEN NAMES?[:.\s]+([A-ZÑ][A-ZÑa-zñ ,.'-]{1,40})`), 1.0},
		{regexp.MustCompile(`(?i)\bFIRST NAME[:.\s]+([A-ZÑ][A-ZÑa-zñ ,.'-]{1,40})`), 0.9},
	}
	middlePatterns = []fieldPattern{
		{regexp.MustCompile(`(?i)\bMIDDLE NAME[:.\s]+([A-ZÑ][A-ZÑa-zñ ,.'-]{1,40})`), 1.0},
	}
	birthPatterns = []fieldPattern{
		{regexp.MustCompile(`(?i)\bDATE OF BIRTH[:.\s]+([A-Za-z0-9 ,/.\-]{6,24})`), 1.0},
		{regexp.MustCompile(`(?i)\bBIRTH ?DATE[:.\s]+([A-Za-z0-9 ,/.\-]{6,24})`), 0.9},
	}
	idNumberPatterns = []fieldPattern{
		{regexp.MustCompile(`(?i)\bPSN[:.\s]*([0-9][0-9 \-]{8,24})`), 1.0},
		{regexp.MustCompile(`(?i)\bPCN[:.\s]*([0-9][0-9 \-]{8,24})`), 1.0},
		{regexp.MustCompile(`(?i)\b(?:ID|LICENSE|PASSPORT) NO[:.\s]*([A-Z0-9][A-Z0-9 \-]{5,24})`), 0.8},
		{regexp.MustCompile(`\b([0-9]{4}[ -][0-9]{4}[ -][0-9]{4}[ -][0-9]{4})\b`), 0.6},
	}
	addressPatterns = []fieldPattern{
		{regexp.MustCompile(`(?i)\bADDRESS[:.\s]+([A-Za-z0-9ñÑ ,.#'\-/]{6,120})`), 1.0},
	}
	sexPatterns = []fieldPattern{
		{regexp.MustCompile(`(?i)\bSEX[:.\s]+(MALE|FEMALE|M|F)\b`), 1.0},
	}
	pobPatterns = []fieldPattern{
		{regexp.MustCompile(`(?i)\bPLACE OF BIRTH[:.\s]+([A-Za-zñÑ0-9 ,.'\-]{4,80})`), 1.0},
	}
	nationalityPatterns = []fieldPattern{
		{regexp.MustCompile(`(?i)\bNATIONALITY[:.\s]+([A-Za-z ]{3,30})`), 1.0},
		{regexp.MustCompile(`(?i)\bCITIZENSHIP[:.\s]+([A-Za-z ]{3,30})`), 0.9},
	}

	// "DELA CRUZ, JUAN" combined form used when labeled fields are absent.
	commaNameRE = regexp.MustCompile(`\b([A-ZÑ][A-ZÑ' -]{1,30}),\s+([A-ZÑ][A-ZÑa-zñ' .-]{1,40})\b`)

	clearanceNoPatterns = []fieldPattern{
		{regexp.MustCompile(`(?i)\bNBI CLEARANCE NO[:.\s]*([A-Z0-9\-]{6,24})`), 1.0},
		{regexp.MustCompile(`(?i)\bCLEARANCE NO[:.\s]*([A-Z0-9\-]{6,24})`), 0.8},
	}
	validityPatterns = []fieldPattern{
		{regexp.MustCompile(`(?i)\bVALID UNTIL[:.\s]+([A-Za-z0-9 ,/.\-]{6,24})`), 1.0},
		{regexp.MustCompile(`(?i)\bVALIDITY[:.\s]+([A-Za-z0-9 ,/.\-]{6,24})`), 0.9},
	}
	issuedPatterns = []fieldPattern{
		{regexp.MustCompile(`(?i)\bISSUED(?: ON)?[:.\s]+([A-Za-z0-9 ,/.\-]{6,24})`), 0.9},
	}

	nbiWordRE    = regexp.MustCompile(`(?i)\bNBI\b`)
	policeWordRE = regexp.MustCompile(`(?i)\bPOLICE\b`)
)

// ExtractFields parses the concatenated OCR text of the ID front and back.
// ocrConf is the mean OCR confidence that scales every pattern weight.
func ExtractFields(text string, idType string, ocrConf float64) Fields {
	var f Fields
	f.ClearanceType = "NONE"
	text = normalizeOCRText(text)

	f.LastName = extractFirst(text, surnamePatterns, ocrConf, titleName)
	f.FirstName = extractFirst(text, givenPatterns, ocrConf, titleName)
	f.MiddleName = extractFirst(text, middlePatterns, ocrConf, titleName)

	// Honor the "SURNAME, GIVEN" comma form when labels failed.
	if f.LastName.Confidence == nil && f.FirstName.Confidence == nil {
		if m := commaNameRE.FindStringSubmatch(text); m != nil {
			conf := ocrConf * 0.6
			f.LastName = Field{Value: titleName(m[1]), Confidence: &conf}
			first := conf
			f.FirstName = Field{Value: titleName(m[2]), Confidence: &first}
		}
	} else if f.LastName.Confidence != nil && strings.Contains(f.LastName.Value, ",") {
		// Labeled field itself carried "SURNAME, GIVEN".
		parts := strings.SplitN(f.LastName.Value, ",", 2)
		f.LastName.Value = strings.TrimSpace(parts[0])
		if f.FirstName.Confidence == nil && strings.TrimSpace(parts[1]) != "" {
			conf := *f.LastName.Confidence
			f.FirstName = Field{Value: strings.TrimSpace(parts[1]), Confidence: &conf}
		}
	}

	if raw := extractFirst(text, birthPatterns, ocrConf, nil); raw.Confidence != nil {
		if t, dateConf, ok := ParseDate(raw.Value); ok {
			f.Birthdate = &t
			c := *raw.Confidence * dateConf
			f.BirthdateConf = &c
		}
	}

	f.IDNumber = extractFirst(text, idNumberPatterns, ocrConf, func(s string) string {
		return strings.Join(strings.Fields(s), " ")
	})
	f.Address = extractFirst(text, addressPatterns, ocrConf, strings.TrimSpace)
	f.Sex = extractFirst(text, sexPatterns, ocrConf, normalizeSex)
	f.PlaceOfBirth = extractFirst(text, pobPatterns, ocrConf, titleName)
	f.Nationality = extractFirst(text, nationalityPatterns, ocrConf, titleName)
	return f
}

// ExtractClearance parses an NBI or police clearance document and fills the
// clearance portion of the fields.
func ExtractClearance(f *Fields, text string, ocrConf float64) {
	text = normalizeOCRText(text)
	switch {
	case nbiWordRE.MatchString(text):
		f.ClearanceType = "NBI"
	case policeWordRE.MatchString(text):
		f.ClearanceType = "POLICE"
	default:
		f.ClearanceType = "NONE"
	}
	f.ClearanceNumber = extractFirst(text, clearanceNoPatterns, ocrConf, strings.ToUpper)
	if raw := extractFirst(text, validityPatterns, ocrConf, nil); raw.Confidence != nil {
		if t, _, ok := ParseDate(raw.Value); ok {
			f.ClearanceValidityDate = &t
		}
	}
	if raw := extractFirst(text, issuedPatterns, ocrConf, nil); raw.Confidence != nil {
		if t, _, ok := ParseDate(raw.Value); ok {
			f.ClearanceIssueDate = &t
		}
	}
}

// extractFirst applies patterns in priority order and returns the first hit,
// cut at the next label token and post-processed by clean.
func extractFirst(text string, patterns []fieldPattern, ocrConf float64, clean func(string) string) Field {
	for _, p := range patterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		val := cutAtLabel(strings.TrimSpace(m[1]))
		if clean != nil {
			val = clean(val)
		}
		val = strings.Trim(val, " .,-:")
		if val == "" {
			continue
		}
		conf := ocrConf * p.weight
		return Field{Value: val, Confidence: &conf}
	}
	return Field{}
}

// cutAtLabel truncates a captured value at the first occurrence of any known
// label token, compensating for RE2's lack of lookahead.
func cutAtLabel(s string) string {
	upper := strings.ToUpper(s)
	cut := len(s)
	for _, label := range labelStops {
		if i := strings.Index(upper, label); i > 0 && i < cut {
			cut = i
		}
	}
	return strings.TrimSpace(s[:cut])
}

// titleName title-cases an extracted name, preserving particles like "dela".
func titleName(s string) string {
	words := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func normalizeSex(s string) string {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "M", "MALE":
		return "MALE"
	case "F", "FEMALE":
		return "FEMALE"
	}
	return ""
}
