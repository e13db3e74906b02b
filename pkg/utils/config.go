package utils

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// StringToBoolHookFunc decodes "true"/"1"/"yes" style strings into bools,
// since env vars and flags arrive as strings.
func StringToBoolHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Bool {
			return data, nil
		}

		switch str := data.(string); str {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no":
			return false, nil
		default:
			return nil, fmt.Errorf("cannot convert %q to bool", str)
		}
	}
}

// StringToIntHookFunc decodes numeric strings into ints.
func StringToIntHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Int {
			return data, nil
		}

		str := data.(string)
		var i int
		if _, err := fmt.Sscanf(str, "%d", &i); err != nil {
			return nil, fmt.Errorf("cannot convert %q to int: %v", str, err)
		}
		return i, nil
	}
}

// UnmarshalConfig decodes v's settings into cfg, handling time.Duration,
// bool and int values that viper surfaces as strings.
func UnmarshalConfig(v viper.Viper, cfg interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			StringToBoolHookFunc(),
			StringToIntHookFunc(),
		),
		Result: &cfg,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(v.AllSettings())
}
