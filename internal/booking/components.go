package booking

import "github.com/p-blackswan/therapy-booking/internal/i18n"

// Header is the page banner.
type Header struct {
	Title        i18n.RichText `json:"title"`
	Introduction i18n.RichText `json:"introduction"`
	ImageSrc     string        `json:"image_src"`
	ImageAlt     string        `json:"image_alt"`
}

// PartnerHeader shows the partner's logo next to the banner illustration.
type PartnerHeader struct {
	PartnerLogoSrc string `json:"partner_logo_src"`
	PartnerLogoAlt string `json:"partner_logo_alt"`
	ImageSrc       string `json:"image_src"`
	ImageAlt       string `json:"image_alt"`
}

// ImageTextItem is one illustrated step.
type ImageTextItem struct {
	Text            string `json:"text"`
	IllustrationSrc string `json:"illustration_src"`
	IllustrationAlt string `json:"illustration_alt"`
}

// ImageTextGrid lays items out in a grid.
type ImageTextGrid struct {
	Items []ImageTextItem `json:"items"`
}

// Image is a standalone illustration.
type Image struct {
	Src    string `json:"src"`
	Alt    string `json:"alt"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// FAQ is one question and answer.
type FAQ struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// step is an untranslated ImageTextItem: text is a key under Therapy.steps
// and alt a key under Shared.
type step struct {
	text string
	src  string
	alt  string
}

var steps = []step{
	{text: "step1", src: "/illustration_choose_therapist.svg", alt: "alt.chooseTherapist"},
	{text: "step2", src: "/illustration_date_selector.svg", alt: "alt.dateSelector"},
	{text: "step3", src: "/illustration_change.svg", alt: "alt.change"},
	{text: "step4", src: "/illustration_confidential.svg", alt: "alt.confidential"},
}

// therapyFAQs are keys under Therapy.faqs, in display order.
var therapyFAQs = []string{"who", "cost", "howMany", "cancel", "privacy"}

const (
	headerImageSrc = "/illustration_person4_peach.svg"
	headerImageAlt = "alt.personTea"
	leafMixSrc     = "/illustration_leaf_mix.svg"
	leafMixAlt     = "alt.leafMix"
)

func buildSteps(tr, shared *i18n.Translator) ImageTextGrid {
	items := make([]ImageTextItem, 0, len(steps))
	for _, s := range steps {
		items = append(items, ImageTextItem{
			Text:            tr.T(s.text, nil),
			IllustrationSrc: s.src,
			IllustrationAlt: shared.Raw(s.alt),
		})
	}
	return ImageTextGrid{Items: items}
}

func buildFAQs(tr *i18n.Translator, partnerName string) []FAQ {
	params := i18n.Params{"partnerName": partnerName}
	faqs := make([]FAQ, 0, len(therapyFAQs))
	for _, key := range therapyFAQs {
		// Catalogs loaded from MESSAGES_DIR may carry only some FAQs.
		if !tr.Has(key + ".title") {
			continue
		}
		faqs = append(faqs, FAQ{
			Title: tr.T(key+".title", params),
			Body:  tr.T(key+".body", params),
		})
	}
	return faqs
}
