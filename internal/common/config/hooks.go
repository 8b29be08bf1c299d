package config

import (
	"encoding"
	"fmt"
	"reflect"
	"strconv"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/maestro-performance/maestro-go/pkg/notes"
)

// CustomHooks replace viper's default decode hook, so the defaults are composed back in.
var CustomHooks = []viper.DecoderConfigOption{
	viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		RoleHookFunc(),
		NumberToTextUnmarshallerHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	)),
}

// RoleHookFunc decodes a notes.Role from either its name ("sender") or its numeric code.
func RoleHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if t != reflect.TypeOf(notes.RoleOther) || f.Kind() != reflect.String {
			return data, nil
		}
		s := data.(string)
		if code, err := strconv.Atoi(s); err == nil {
			return notes.Role(code), nil
		}
		return notes.ParseRole(s)
	}
}

// NumberToTextUnmarshallerHookFunc lets numeric values decode into types implementing encoding.TextUnmarshaler,
// such as a test duration given as a message count in yaml or an environment variable parsed by viper.
func NumberToTextUnmarshallerHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		switch f.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
		default:
			return data, nil
		}
		result := reflect.New(t).Interface()
		unmarshaller, ok := result.(encoding.TextUnmarshaler)
		if !ok {
			return data, nil
		}
		if err := unmarshaller.UnmarshalText([]byte(fmt.Sprint(data))); err != nil {
			return nil, err
		}
		return result, nil
	}
}
