package utils

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"vindr-sr/constants"

	"github.com/gin-gonic/gin"
)

// ConvertTimeStampToTime converts epoch milliseconds.
func ConvertTimeStampToTime(timestamp int64) time.Time {
	return time.Unix(timestamp/1000, (timestamp%1000)*int64(time.Millisecond))
}

// ConvertGinRequestToPaging reads offset, limit and sort from the query
// string, falling back to the defaults.
func ConvertGinRequestToPaging(c *gin.Context) (int, int, string) {
	size, err := strconv.Atoi(c.Query(constants.ParamLimit))
	if err != nil || size <= 0 {
		size = constants.DefaultLimit
	}
	from, err := strconv.Atoi(c.Query(constants.ParamOffset))
	if err != nil || from < 0 {
		from = constants.DefaultOffset
	}
	return from, size, c.Query(constants.ParamSort)
}

// ConvertQueryBool reads a boolean query parameter. Anything unparsable is
// false.
func ConvertQueryBool(c *gin.Context, key string) bool {
	v, err := strconv.ParseBool(c.Query(key))
	return err == nil && v
}

func ConvertMapToString(m map[string]interface{}) string {
	jsonString, err := json.Marshal(m)
	if err != nil {
		return fmt.Sprintf("%v", m)
	}
	return string(jsonString)
}
