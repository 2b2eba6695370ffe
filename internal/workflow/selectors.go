package workflow

// Selector keys. Each maps to one or more candidate texts or resource ids.
const (
	SelSymptomAdd      = "symptom_add_text"
	SelStartNow        = "start_now_text"
	SelConsentAgree    = "consent_agree_text"
	SelOfflineMode     = "offline_mode_text"
	SelOfflineCheckbox = "offline_checkbox_id"
	SelOfflineAgree    = "offline_agree_text"
	SelOfflineConfirm  = "offline_confirm_text"
	SelUseSPatch       = "use_spatch_text"
	SelDurationSheet   = "duration_sheet_title"
	SelDuration24h     = "duration_24h_text"
	SelDuration48h     = "duration_48h_text"
	SelDuration72h     = "duration_72h_text"
	SelConfirm         = "confirm_text"
	SelSymptomConfirm  = "symptom_confirm_text"
	SelSymptomDone     = "symptom_done_text"
	SelOtherTextField  = "other_text_field_id"
	SelOtherTile       = "other_tile_text"
	SelKeyboardDone    = "keyboard_done_text"
	SelAddActivity     = "add_activity_text"
	SelActivitySubmit  = "activity_submit_text"
)

var defaultSelectors = map[string][]string{
	SelSymptomAdd:     {"증상 추가"},
	SelStartNow:       {"Start Now"},
	SelConsentAgree:   {"동의"},
	SelOfflineMode:    {"오프라인"},
	SelOfflineAgree:   {"동의합니다"},
	SelUseSPatch:      {"S-Patch 사용하기"},
	SelDurationSheet:  {"검사 기간을 선택해주세요"},
	SelConfirm:        {"확인"},
	SelSymptomConfirm: {"증상 추가"},
	SelSymptomDone:    {"환자일지 등록"},
	SelOtherTile:      {"기타"},
	SelKeyboardDone:   {"완료"},
	SelAddActivity:    {"활동 추가"},
	SelActivitySubmit: {"활동 추가"},
}

// Selectors holds the configured candidates per key. Keys left unset fall
// back to the built-in defaults.
type Selectors map[string][]string

// Get returns the candidates for key, or nil when the key is neither
// configured nor defaulted.
func (s Selectors) Get(key string) []string {
	if v := s[key]; len(v) > 0 {
		return v
	}
	return defaultSelectors[key]
}
