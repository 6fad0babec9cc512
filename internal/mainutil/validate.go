package mainutil

import (
	"fmt"
	"reflect"
	"strconv"

	"gopkg.in/validator.v2"
)

// Validate checks an options struct against its "traits" tags.
func Validate(v interface{}) error {
	vt := validator.NewValidator()
	vt.SetTag("traits")
	vt.SetValidationFunc("nz", nz)
	vt.SetValidationFunc("gt", cmp("gt"))
	vt.SetValidationFunc("ge", cmp("ge"))
	vt.SetValidationFunc("lt", cmp("lt"))
	vt.SetValidationFunc("le", cmp("le"))
	errs, _ := vt.Validate(v).(validator.ErrorMap)
	for k, err := range errs {
		if len(err[0].Error()) > 0 {
			return fmt.Errorf("%s %s?", k, err)
		}
		return fmt.Errorf("%s?", k)
	}
	return nil
}

func nz(v interface{}, _ string) error {
	st := reflect.ValueOf(v)
	if st.Kind() == reflect.Ptr {
		if st.IsNil() {
			return nil
		}
		st = st.Elem()
	}
	valid := true
	switch st.Kind() {
	case reflect.String:
		valid = st.Len() != 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		valid = st.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		valid = st.Uint() != 0
	case reflect.Float32, reflect.Float64:
		valid = st.Float() != 0
	default:
		panic("mainutil.Validate: unsupported type")
	}
	if !valid {
		return fmt.Errorf("")
	}
	return nil
}

// cmp builds the gt/ge/lt/le validators, which differ only in the
// comparison applied to the tag parameter.
func cmp(op string) validator.ValidationFunc {
	return func(v interface{}, param string) error {
		st := reflect.ValueOf(v)
		if st.Kind() == reflect.Ptr {
			if st.IsNil() {
				return nil
			}
			st = st.Elem()
		}
		var c int // sign of value-param
		switch st.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			p, err := strconv.ParseInt(param, 0, 64)
			if err != nil {
				panic(fmt.Sprintf("mainutil.Validate: %s", err))
			}
			c = sign(st.Int() - p)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			p, err := strconv.ParseUint(param, 0, 64)
			if err != nil {
				panic(fmt.Sprintf("mainutil.Validate: %s", err))
			}
			switch {
			case st.Uint() < p:
				c = -1
			case st.Uint() > p:
				c = 1
			}
		case reflect.Float32, reflect.Float64:
			p, err := strconv.ParseFloat(param, 64)
			if err != nil {
				panic(fmt.Sprintf("mainutil.Validate: %s", err))
			}
			switch {
			case st.Float() < p:
				c = -1
			case st.Float() > p:
				c = 1
			}
		default:
			panic("mainutil.Validate: unsupported type")
		}
		var valid bool
		var fail string
		switch op {
		case "gt":
			valid, fail = c > 0, "<="
		case "ge":
			valid, fail = c >= 0, "<"
		case "lt":
			valid, fail = c < 0, ">="
		case "le":
			valid, fail = c <= 0, ">"
		}
		if !valid {
			return fmt.Errorf("%s %s", fail, param)
		}
		return nil
	}
}

func sign(x int64) int {
	switch {
	case x < 0:
		return -1
	case x > 0:
		return 1
	}
	return 0
}
