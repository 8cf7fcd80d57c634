package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

type result[T any] struct {
	v   T
	err error
}

// await 把仓库的回调式调用转成请求内的同步等待，请求取消时提前返回
func await[T any](c *gin.Context, call func(cb func(T, error))) (T, error) {
	ch := make(chan result[T], 1)
	call(func(v T, err error) { ch <- result[T]{v, err} })
	select {
	case r := <-ch:
		return r.v, r.err
	case <-c.Request.Context().Done():
		var zero T
		return zero, c.Request.Context().Err()
	}
}

func awaitErr(c *gin.Context, call func(cb func(error))) error {
	_, err := await(c, func(cb func(struct{}, error)) {
		call(func(err error) { cb(struct{}{}, err) })
	})
	return err
}

func paramID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
