// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
# 概述

包 structured 提供提取目标的 Schema 建模、生成与校验，以及可提交的目标类型。

# 核心接口

  - SchemaValidator — 对已解码的候选值按 JSONSchema 做字段级校验

# 主要类型

  - JSONSchema — Schema 定义，支持 object/array/enum/const 与组合关键词
  - SchemaGenerator / SchemaFor — 通过反射从 Go 类型生成 JSONSchema，支持 jsonschema 标签
  - DefaultValidator — 内置校验器，含 email/uri/uuid/date-time/ipv4 等格式
  - OpenAPIValidator — 基于 kin-openapi 的替代校验引擎
  - Document — 面向原始 Schema 的动态目标
  - Form[T] — 绑定到 Go 类型的泛型目标，可附加 Validate() 业务规则
  - ParseError / ValidationErrors — 带路径的校验错误

# 典型用法

	form, _ := structured.NewForm[Profile]()
	form.Submit(candidate)
	if form.IsValid() {
		use(form.Data())
	}

	schema, _ := structured.LoadSchemaFile("profile.schema.yaml")
	doc := structured.NewDocument(schema, structured.WithValidator(structured.NewOpenAPIValidator()))
*/
package structured
