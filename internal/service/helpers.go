package service

import "strconv"

func int64String(id int64) string {
	return strconv.FormatInt(id, 10)
}
