package recognition

import (
	"github.com/tidwall/gjson"

	"github.com/khaledhikmat/vs-traffic/model"
)

const maxBodyInError = 512

// Parse turns a 200 response body into detections and a scalar count.
//
// vehicle: {"vehicle_info":[{"type":"car","location":{"left":..,"top":..,"width":..,"height":..}}]}
// crowd:   {"person_num": 5}
func Parse(mode model.Mode, statusCode int, body []byte) (Result, error) {
	if !gjson.ValidBytes(body) {
		return Result{}, &VendorError{
			Mode:       mode,
			StatusCode: statusCode,
			Message:    "malformed response body",
			Body:       truncate(body),
		}
	}

	root := gjson.ParseBytes(body)
	if code := root.Get("error_code"); code.Exists() && code.Int() != 0 {
		return Result{}, &VendorError{
			Mode:       mode,
			StatusCode: statusCode,
			Code:       code.Int(),
			Message:    root.Get("error_msg").String(),
			Body:       truncate(body),
		}
	}

	result := Result{
		Mode:       mode,
		StatusCode: statusCode,
		Body:       body,
	}

	switch mode {
	case model.ModeCrowd:
		num := root.Get("person_num")
		if !num.Exists() {
			return Result{}, ErrEmptyResult
		}
		result.Count = int(num.Int())
		result.Detections = []model.Detection{model.CrowdDetection(result.Count)}

	default:
		info := root.Get("vehicle_info")
		if !info.Exists() {
			return Result{}, ErrEmptyResult
		}
		result.Detections = []model.Detection{}
		info.ForEach(func(_, vehicle gjson.Result) bool {
			vehicleType := vehicle.Get("type").String()
			if vehicleType == "" {
				vehicleType = "unknown"
			}
			location := vehicle.Get("location")
			result.Detections = append(result.Detections, model.VehicleDetection(vehicleType, model.Box{
				Left:   int(location.Get("left").Int()),
				Top:    int(location.Get("top").Int()),
				Width:  int(location.Get("width").Int()),
				Height: int(location.Get("height").Int()),
			}))
			return true
		})
		result.Count = len(result.Detections)
	}

	return result, nil
}

func truncate(body []byte) string {
	if len(body) > maxBodyInError {
		return string(body[:maxBodyInError]) + "..."
	}
	return string(body)
}
