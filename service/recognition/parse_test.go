package recognition

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khaledhikmat/vs-traffic/model"
)

func TestParseVehicles(t *testing.T) {
	body := `{"vehicle_num":{"car":1,"truck":1},"vehicle_info":[
		{"type":"car","location":{"left":1,"top":2,"width":3,"height":4}},
		{"type":"truck","location":{"left":5,"top":6,"width":7,"height":8}},
		{"location":{"left":0,"top":0,"width":1,"height":1}}]}`

	result, err := Parse(model.ModeVehicle, 200, []byte(body))
	require.NoError(t, err)

	assert.Equal(t, 3, result.Count)
	assert.Equal(t, "car", result.Detections[0].Type)
	assert.Equal(t, model.Box{Left: 5, Top: 6, Width: 7, Height: 8}, result.Detections[1].Box)
	assert.Equal(t, "unknown", result.Detections[2].Type)
}

func TestParseNoVehiclesIsSuccess(t *testing.T) {
	result, err := Parse(model.ModeVehicle, 200, []byte(`{"vehicle_info":[]}`))
	require.NoError(t, err)
	assert.Equal(t, 0, result.Count)
	assert.Empty(t, result.Detections)
}

func TestParseEmptyResult(t *testing.T) {
	_, err := Parse(model.ModeVehicle, 200, []byte(`{"log_id":42}`))
	assert.ErrorIs(t, err, ErrEmptyResult)

	_, err = Parse(model.ModeCrowd, 200, []byte(`{}`))
	assert.ErrorIs(t, err, ErrEmptyResult)
}

func TestParseMalformedBody(t *testing.T) {
	_, err := Parse(model.ModeCrowd, 200, []byte(`{"person_num":`))

	var vendorErr *VendorError
	require.ErrorAs(t, err, &vendorErr)
	assert.Equal(t, "malformed response body", vendorErr.Message)
}

func TestFakeRepeatsLastReply(t *testing.T) {
	boom := errors.New("boom")
	fake := NewFake(
		FakeReply{Body: `{"person_num":5}`},
		FakeReply{Err: boom},
	)

	result, err := fake.Classify(context.Background(), []byte("a"), model.ModeCrowd)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Count)

	for i := 0; i < 3; i++ {
		_, err = fake.Classify(context.Background(), []byte("b"), model.ModeCrowd)
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, 4, fake.Calls())
	assert.Equal(t, 1, fake.Peak())
}

func TestFakeByImageOverridesScript(t *testing.T) {
	fake := NewFake(FakeReply{Body: `{"person_num":1}`})
	fake.ByImage["special"] = FakeReply{Body: `{"person_num":9}`}

	result, err := fake.Classify(context.Background(), []byte("special"), model.ModeCrowd)
	require.NoError(t, err)
	assert.Equal(t, 9, result.Count)
}
