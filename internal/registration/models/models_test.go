package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "onboarding/pkg/domain"
)

func TestStepNames(t *testing.T) {
	t.Run("every step round-trips through its wire name", func(t *testing.T) {
		for _, s := range Steps() {
			parsed, err := ParseStep(s.String())
			require.NoError(t, err)
			assert.Equal(t, s, parsed)
		}
	})

	t.Run("steps marshal as names", func(t *testing.T) {
		body, err := json.Marshal(map[string]Step{"step": StepFaceVerification})
		require.NoError(t, err)
		assert.JSONEq(t, `{"step":"face_verification"}`, string(body))
	})

	t.Run("unknown names are rejected", func(t *testing.T) {
		_, err := ParseStep("welcome")
		assert.Error(t, err)
		assert.False(t, Step(99).Valid())
	})

	assert.Len(t, Steps(), 16)
}

func TestMilestonesAt(t *testing.T) {
	states := func(current Step) []string {
		var out []string
		for _, m := range MilestonesAt(current) {
			out = append(out, m.State)
		}
		return out
	}

	assert.Equal(t, []string{MilestoneActive, MilestonePending, MilestonePending, MilestonePending}, states(StepIntro))
	assert.Equal(t, []string{MilestoneCompleted, MilestonePending, MilestonePending, MilestonePending}, states(StepAddressAndBusiness))
	assert.Equal(t, []string{MilestoneCompleted, MilestoneCompleted, MilestonePending, MilestonePending}, states(StepSuccess))
	assert.Equal(t, []string{MilestoneCompleted, MilestoneCompleted, MilestoneCompleted, MilestoneActive}, states(StepContractSigned))
}

func TestDateOfBirthPickerRange(t *testing.T) {
	assert.True(t, DefaultDateOfBirth.InPickerRange())
	assert.True(t, DateOfBirth{Day: 31, Month: 12, Year: MaxBirthYear}.InPickerRange())
	assert.True(t, DateOfBirth{Day: 30, Month: 2, Year: MinBirthYear}.InPickerRange(), "no calendar validation")
	assert.False(t, DateOfBirth{Day: 0, Month: 1, Year: 1370}.InPickerRange())
	assert.False(t, DateOfBirth{Day: 1, Month: 13, Year: 1370}.InPickerRange())
	assert.False(t, DateOfBirth{Day: 1, Month: 1, Year: 1403}.InPickerRange())
	assert.False(t, DateOfBirth{Day: 1, Month: 1, Year: 1322}.InPickerRange())
}

func TestRecordImages(t *testing.T) {
	r := NewRecord("تهران")
	first := &ImageRef{ID: id.NewImageID()}
	second := &ImageRef{ID: id.NewImageID()}

	assert.Nil(t, r.SetImage(SlotSmartCardFront, first))
	assert.Equal(t, first, r.SetImage(SlotSmartCardFront, second))
	assert.Equal(t, second, r.Image(SlotSmartCardFront))
	assert.Len(t, r.Images(), 1)

	clone := r.Clone()
	clone.SmartCardFront.Size = 42
	assert.Zero(t, r.SmartCardFront.Size, "clone must not share image refs")
}

func TestParseDocumentType(t *testing.T) {
	dt, err := ParseDocumentType("smart_card")
	require.NoError(t, err)
	assert.Equal(t, DocumentSmartCard, dt)

	_, err = ParseDocumentType("")
	assert.Error(t, err)
	_, err = ParseDocumentType("passport")
	assert.Error(t, err)
}

func TestSearchBusinessCategories(t *testing.T) {
	assert.Len(t, SearchBusinessCategories(""), len(BusinessCategories))
	assert.Equal(t, []string{"داروخانه"}, SearchBusinessCategories("دارو"))
	assert.Empty(t, SearchBusinessCategories("zzz"))
	assert.True(t, IsBusinessCategory("نانوایی"))
	assert.False(t, IsBusinessCategory("نان"))
}
